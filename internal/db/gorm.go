package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db/migrations"
)

// Ledger join tables. Every one of them stores LedgerEdge rows.
const (
	TableSavedEvents      = "saved_events"
	TableSavedBuckets     = "saved_buckets"
	TableCreatedEvents    = "created_events"
	TableCompletedBuckets = "completed_buckets"
)

var LedgerTables = []string{TableSavedEvents, TableSavedBuckets, TableCreatedEvents, TableCompletedBuckets}

type (
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// SessionCredential is replaced as a whole, never field by field.
	SessionCredential struct {
		SessionToken      string    `gorm:"uniqueIndex;not null"`
		SessionExpiration time.Time `gorm:"not null"`
		UpdateToken       string    `gorm:"uniqueIndex;not null"`
	}

	User struct {
		GormForkedModel
		Name         string `gorm:"not null"`
		Email        string `gorm:"unique;not null"`
		PhoneNumber  *string
		PasswordHash *string
		Credential   SessionCredential `gorm:"embedded"`
	}

	Event struct {
		GormForkedModel
		Title       string `gorm:"not null"`
		HostName    string `gorm:"not null"`
		Date        int64  `gorm:"not null;index"`
		Location    string `gorm:"not null"`
		Description string `gorm:"not null"`
		AssetID     uint64 `gorm:"not null;uniqueIndex"`
		Asset       Asset
		Categories  []Category `gorm:"many2many:event_categories;"`
		RemindedAt  *time.Time
	}

	BucketItem struct {
		GormForkedModel
		Description string `gorm:"not null"`
		Status      bool   `gorm:"not null;default:false"`
	}

	Category struct {
		GormForkedModel
		Description string `gorm:"not null"`
		Color       string `gorm:"not null"`
	}

	Asset struct {
		ID        uint64 `gorm:"primarykey"`
		BaseURL   string `gorm:"not null"`
		Salt      string `gorm:"not null"`
		Extension string `gorm:"not null"`
		Width     int    `gorm:"not null"`
		Height    int    `gorm:"not null"`
		CreatedAt time.Time
	}

	LedgerEdge struct {
		UserID    uint64 `gorm:"primaryKey;autoIncrement:false"`
		TargetID  uint64 `gorm:"primaryKey;autoIncrement:false"`
		CreatedAt time.Time
	}
)

func (a Asset) Filename() string {
	return a.Salt + "." + a.Extension
}

func (a Asset) URL() string {
	return a.BaseURL + "/" + a.Filename()
}

func (e Event) Time() time.Time {
	return time.Unix(e.Date, 0)
}

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.LogLevel == "debug" {
		logLevel = logger.Info
	}
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logLevel,
		Colorful:                  true,
		IgnoreRecordNotFoundError: true,
	})

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DBPath)
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(context.Background(), db, cfg.DBDriver); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate brings the schema up to date. Postgres runs the versioned goose
// migrations; sqlite is a development store and is auto-migrated from the models.
func Migrate(ctx context.Context, db *gorm.DB, driver string) error {
	if driver != config.DriverPostgres {
		return AutoMigrate(db)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&Asset{}); err != nil {
		return errors.Wrap(err, "migrate asset")
	}
	if err := db.AutoMigrate(&Category{}); err != nil {
		return errors.Wrap(err, "migrate category")
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		return errors.Wrap(err, "migrate event")
	}
	if err := db.AutoMigrate(&BucketItem{}); err != nil {
		return errors.Wrap(err, "migrate bucket item")
	}
	for _, table := range LedgerTables {
		if err := db.Table(table).AutoMigrate(&LedgerEdge{}); err != nil {
			return errors.Wrap(err, fmt.Sprintf("migrate %s", table))
		}
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql.DB")
	}
	return sqlDB.Close()
}
