package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

func TestSweeperRun(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	host := env.createUser(t, "Host", "host@example.com")
	ann := env.createUser(t, "Ann", "ann@example.com")
	bob := env.createUser(t, "Bob", "bob@example.com")
	cat := env.createUser(t, "Cat", "cat@example.com")
	_, err := env.users.SetPhoneNumber(ctx, ann.User.ID, "+15550001")
	require.NoError(t, err)
	_, err = env.users.SetPhoneNumber(ctx, bob.User.ID, "+15550002")
	require.NoError(t, err)

	past := env.createEvent(t, host.User.ID, "Yesterday", env.now.Add(-time.Hour))
	soon := env.createEvent(t, host.User.ID, "Tomorrow", env.now.Add(23*time.Hour))
	edge := env.createEvent(t, host.User.ID, "Edge", env.now.Add(24*time.Hour+10*time.Second))
	later := env.createEvent(t, host.User.ID, "Next week", env.now.Add(7*24*time.Hour))
	broken := env.insertEvent(t, "Broken", 0)

	for _, e := range []*db.Event{past, soon, later} {
		for _, u := range []*Profile{ann, bob, cat} {
			_, err := env.ledger.AddMember(ctx, u.User.ID, e.ID, RelationSavedEvent)
			require.NoError(t, err)
		}
	}
	_, err = env.ledger.AddMember(ctx, ann.User.ID, edge.ID, RelationSavedEvent)
	require.NoError(t, err)

	env.messenger.fail = map[string]bool{"+15550002": true}

	report, err := env.sweeper.Run(ctx)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 2, report.Reminded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, int64(2), report.Sent)
	assert.Equal(t, int64(1), report.Failed)
	assert.ElementsMatch(t, []string{"+15550001", "+15550001"}, env.messenger.recipients())

	for _, m := range env.messenger.sent {
		assert.Equal(t, "+15550000", m.From)
		assert.Equal(t, "You have an upcoming event", m.Body)
		assert.Equal(t, "https://cdn.test/owl.png", m.MediaURL)
	}

	t.Run("past event is gone with its edges", func(t *testing.T) {
		_, err := env.catalog.GetEvent(ctx, past.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		holders, err := env.ledger.Holders(ctx, past.ID, RelationSavedEvent)
		require.NoError(t, err)
		assert.Empty(t, holders)

		var n int64
		require.NoError(t, env.db.Table(db.TableCreatedEvents).Where("target_id = ?", past.ID).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("reminded events are stamped", func(t *testing.T) {
		for _, id := range []uint64{soon.ID, edge.ID} {
			got, err := env.catalog.GetEvent(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, got.RemindedAt, id)
		}

		got, err := env.catalog.GetEvent(ctx, later.ID)
		require.NoError(t, err)
		assert.Nil(t, got.RemindedAt)
	})

	t.Run("unparseable event is left alone", func(t *testing.T) {
		_, err := env.catalog.GetEvent(ctx, broken.ID)
		assert.NoError(t, err)
	})

	t.Run("second pass does not text again", func(t *testing.T) {
		report, err := env.sweeper.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, report.Expired)
		assert.Zero(t, report.Reminded)
		assert.Zero(t, report.Sent)
		assert.Len(t, env.messenger.recipients(), 2)
	})
}

func TestSweeperWindowIsConfigurable(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sweeper.window = time.Hour
	env.sweeper.tolerance = 0

	host := env.createUser(t, "Host", "host@example.com")
	ann := env.createUser(t, "Ann", "ann@example.com")
	_, err := env.users.SetPhoneNumber(ctx, ann.User.ID, "+15550001")
	require.NoError(t, err)

	inside := env.createEvent(t, host.User.ID, "Inside", env.now.Add(59*time.Minute))
	outside := env.createEvent(t, host.User.ID, "Outside", env.now.Add(time.Hour))
	for _, e := range []*db.Event{inside, outside} {
		_, err := env.ledger.AddMember(ctx, ann.User.ID, e.ID, RelationSavedEvent)
		require.NoError(t, err)
	}

	report, err := env.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reminded)
	assert.Equal(t, int64(1), report.Sent)
}

func TestSweeperWithoutRecipientsDoesNotStamp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	host := env.createUser(t, "Host", "host@example.com")
	soon := env.createEvent(t, host.User.ID, "Tomorrow", env.now.Add(time.Hour))

	report, err := env.sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Reminded)

	got, err := env.catalog.GetEvent(ctx, soon.ID)
	require.NoError(t, err)
	assert.Nil(t, got.RemindedAt)
}
