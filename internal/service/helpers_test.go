package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db/dbtest"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/notify"
)

type fakeStorage struct {
	mu      sync.Mutex
	fail    error
	uploads map[string][]byte
}

func (f *fakeStorage) Upload(_ context.Context, body []byte, filename, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[filename] = body
	return "https://cdn.test/images/", nil
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []notify.Message
	fail map[string]bool
}

func (f *fakeMessenger) Send(_ context.Context, msg notify.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return "", errors.New("gateway down")
	}
	f.sent = append(f.sent, msg)
	return "SM" + msg.To, nil
}

func (f *fakeMessenger) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.To)
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	cfg       *config.Config
	now       time.Time
	storage   *fakeStorage
	messenger *fakeMessenger
	sessions  *Sessions
	ledger    *Ledger
	users     *Users
	assets    *Assets
	catalog   *Catalog
	sweeper   *Sweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb := dbtest.NewSQLite(t)
	logger := zap.NewNop().Sugar()
	cfg := &config.Config{
		SessionTTL:          time.Hour,
		BcryptCost:          bcrypt.MinCost,
		TwilioFrom:          "+15550000",
		ReminderBody:        "You have an upcoming event",
		ReminderMediaURL:    "https://cdn.test/owl.png",
		ReminderWindow:      24 * time.Hour,
		ReminderTolerance:   30 * time.Second,
		DispatchTimeout:     time.Second,
		DispatchConcurrency: 2,
	}

	env := &testEnv{
		db:        gdb,
		cfg:       cfg,
		now:       time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		storage:   &fakeStorage{},
		messenger: &fakeMessenger{},
	}
	clock := func() time.Time { return env.now }

	env.sessions = NewSessions(gdb, cfg, logger)
	env.sessions.now = clock
	env.ledger = NewLedger(gdb, logger)
	env.users = NewUsers(gdb, env.sessions, env.ledger, cfg, logger)

	assets, err := NewAssets(env.storage, logger)
	require.NoError(t, err)
	env.assets = assets

	env.catalog = NewCatalog(gdb, env.ledger, env.assets, logger)
	env.sweeper = NewSweeper(gdb, env.catalog, env.ledger, env.messenger, cfg, logger)
	env.sweeper.now = clock

	return env
}

func (e *testEnv) createUser(t *testing.T, name, email string) *Profile {
	t.Helper()
	p, err := e.users.Create(context.Background(), CreateUserInput{Name: name, Email: email})
	require.NoError(t, err)
	return p
}

func (e *testEnv) createEvent(t *testing.T, userID uint64, title string, at time.Time) *db.Event {
	t.Helper()
	event, err := e.catalog.CreateEvent(context.Background(), userID, CreateEventInput{
		Title:       title,
		HostName:    "Host",
		Date:        at.Unix(),
		Location:    "Ithaca",
		Description: "a gathering",
		Image:       pngDataURI(t, 4, 3),
	})
	require.NoError(t, err)
	return event
}

// insertEvent bypasses validation, for dates CreateEvent would refuse.
func (e *testEnv) insertEvent(t *testing.T, title string, date int64) *db.Event {
	t.Helper()
	asset := db.Asset{BaseURL: "https://cdn.test", Salt: title, Extension: "png", Width: 1, Height: 1}
	require.NoError(t, e.db.Create(&asset).Error)
	event := db.Event{
		Title:       title,
		HostName:    "Host",
		Date:        date,
		Location:    "Ithaca",
		Description: "a gathering",
		AssetID:     asset.ID,
	}
	require.NoError(t, e.db.Omit("Asset", "Categories").Create(&event).Error)
	return &event
}

func (e *testEnv) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Table(table).Count(&n).Error)
	return n
}

func testImage(w, h int) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, w, h), color.Palette{color.Black, color.White})
	img.SetColorIndex(0, 0, 1)
	return img
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func gifBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := bytes.Buffer{}
	require.NoError(t, gif.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}
