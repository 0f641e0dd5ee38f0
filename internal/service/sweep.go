package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/notify"
)

// Messenger delivers one reminder and returns the gateway's message id.
type Messenger interface {
	Send(ctx context.Context, msg notify.Message) (string, error)
}

type SweepReport struct {
	RunID    string
	Scanned  int
	Expired  int
	Reminded int
	Skipped  int
	Sent     int64
	Failed   int64
}

// Sweeper makes one pass over all events: past events are removed, events
// starting inside the reminder window get an SMS to everyone who saved them.
type Sweeper struct {
	db        *gorm.DB
	catalog   *Catalog
	ledger    *Ledger
	messenger Messenger

	from        string
	body        string
	mediaURL    string
	window      time.Duration
	tolerance   time.Duration
	timeout     time.Duration
	concurrency int

	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewSweeper(gdb *gorm.DB, catalog *Catalog, ledger *Ledger, messenger Messenger, cfg *config.Config, l *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		db:          gdb,
		catalog:     catalog,
		ledger:      ledger,
		messenger:   messenger,
		from:        cfg.TwilioFrom,
		body:        cfg.ReminderBody,
		mediaURL:    cfg.ReminderMediaURL,
		window:      cfg.ReminderWindow,
		tolerance:   cfg.ReminderTolerance,
		timeout:     cfg.DispatchTimeout,
		concurrency: cfg.DispatchConcurrency,
		now:         time.Now,
		logger:      l,
	}
}

// Run only fails when the events cannot be loaded. Anything that goes wrong
// with a single event or recipient is logged and the pass moves on.
func (s *Sweeper) Run(ctx context.Context) (*SweepReport, error) {
	report := SweepReport{RunID: uuid.New().String()}
	log := s.logger.With("run_id", report.RunID)

	events := make([]db.Event, 0)
	if err := s.db.WithContext(ctx).Order("date, id").Find(&events).Error; err != nil {
		return nil, errors.Wrap(err, "load events")
	}

	now := s.now()
	horizon := now.Add(s.window + s.tolerance)

	for _, event := range events {
		if ctx.Err() != nil {
			log.Warnw("sweep interrupted", "error", ctx.Err())
			break
		}
		report.Scanned++

		if event.Date <= 0 {
			log.Warnw("event date is not a timestamp, skipping", "event_id", event.ID, "date", event.Date)
			report.Skipped++
			continue
		}

		at := event.Time()
		switch {
		case at.Before(now):
			if err := s.expire(ctx, event.ID); err != nil {
				log.Errorw("failed to expire event", "event_id", event.ID, "error", err)
				continue
			}
			report.Expired++
		case at.Before(horizon) && event.RemindedAt == nil:
			sent, failed, err := s.remind(ctx, log, event)
			report.Sent += sent
			report.Failed += failed
			if err != nil {
				log.Errorw("failed to remind event", "event_id", event.ID, "error", err)
				continue
			}
			if sent+failed > 0 {
				report.Reminded++
			}
		}
	}

	log.Infow("sweep finished",
		"scanned", report.Scanned,
		"expired", report.Expired,
		"reminded", report.Reminded,
		"skipped", report.Skipped,
		"sent", report.Sent,
		"failed", report.Failed,
	)
	return &report, nil
}

func (s *Sweeper) expire(ctx context.Context, eventID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.catalog.removeEvent(tx, eventID)
	})
}

// remind texts every saved_events holder with a phone number, then stamps
// the event so the next pass does not text them again.
func (s *Sweeper) remind(ctx context.Context, log *zap.SugaredLogger, event db.Event) (int64, int64, error) {
	holders, err := s.ledger.Holders(ctx, event.ID, RelationSavedEvent)
	if err != nil {
		return 0, 0, err
	}

	recipients := make([]db.User, 0, len(holders))
	for _, u := range holders {
		if u.PhoneNumber != nil && *u.PhoneNumber != "" {
			recipients = append(recipients, u)
		}
	}
	if len(recipients) == 0 {
		return 0, 0, nil
	}

	var sent, failed int64
	g := errgroup.Group{}
	g.SetLimit(s.concurrency)
	for _, u := range recipients {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			id, err := s.messenger.Send(callCtx, notify.Message{
				From:     s.from,
				To:       *u.PhoneNumber,
				Body:     s.body,
				MediaURL: s.mediaURL,
			})
			if err != nil {
				atomic.AddInt64(&failed, 1)
				log.Warnw("reminder not delivered", "event_id", event.ID, "user_id", u.ID, "error", err)
				return nil
			}
			atomic.AddInt64(&sent, 1)
			log.Debugw("reminder sent", "event_id", event.ID, "user_id", u.ID, "message_id", id)
			return nil
		})
	}
	_ = g.Wait()

	err = s.db.WithContext(ctx).Model(&db.Event{}).
		Where("id = ?", event.ID).
		Update("reminded_at", s.now()).Error
	if err != nil {
		return sent, failed, errors.Wrap(err, "mark event reminded")
	}
	return sent, failed, nil
}
