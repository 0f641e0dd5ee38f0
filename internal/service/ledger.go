package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

type Relation int

const (
	RelationSavedEvent Relation = iota + 1
	RelationSavedBucket
	RelationCreatedEvent
	RelationCompletedBucket
)

type targetKind int

const (
	kindEvent targetKind = iota + 1
	kindBucket
)

type relationSpec struct {
	name  string
	table string
	kind  targetKind
}

var relations = map[Relation]relationSpec{
	RelationSavedEvent:      {name: "saved_events", table: db.TableSavedEvents, kind: kindEvent},
	RelationSavedBucket:     {name: "saved_buckets", table: db.TableSavedBuckets, kind: kindBucket},
	RelationCreatedEvent:    {name: "created_events", table: db.TableCreatedEvents, kind: kindEvent},
	RelationCompletedBucket: {name: "completed_bucket_list", table: db.TableCompletedBuckets, kind: kindBucket},
}

func (r Relation) String() string {
	if spec, ok := relations[r]; ok {
		return spec.name
	}
	return fmt.Sprintf("relation(%d)", int(r))
}

func (r Relation) spec() (relationSpec, error) {
	spec, ok := relations[r]
	if !ok {
		return relationSpec{}, validationError(fmt.Sprintf("unknown relation %d", int(r)))
	}
	return spec, nil
}

func (k targetKind) table() string {
	if k == kindBucket {
		return "bucket_items"
	}
	return "events"
}

func (k targetKind) String() string {
	if k == kindBucket {
		return "bucket item"
	}
	return "event"
}

// Profile is a user together with the four membership sets the ledger keeps for them.
type Profile struct {
	User             db.User
	SavedEvents      []db.Event
	SavedBuckets     []db.BucketItem
	CreatedEvents    []db.Event
	CompletedBuckets []db.BucketItem
}

// Ledger owns every user <-> event/bucket membership. Nothing else writes or
// deletes rows in the ledger tables.
type Ledger struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewLedger(gdb *gorm.DB, l *zap.SugaredLogger) *Ledger {
	return &Ledger{
		db:     gdb,
		logger: l,
	}
}

func (l *Ledger) AddMember(ctx context.Context, userID, targetID uint64, rel Relation) (*Profile, error) {
	spec, err := rel.spec()
	if err != nil {
		return nil, err
	}

	var p *Profile
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, "users", userID, "user"); err != nil {
			return err
		}
		if err := ensureExists(tx, spec.kind.table(), targetID, spec.kind.String()); err != nil {
			return err
		}
		if err := l.add(tx, userID, targetID, spec); err != nil {
			return err
		}
		p, err = l.profile(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (l *Ledger) RemoveMember(ctx context.Context, userID, targetID uint64, rel Relation) (*Profile, error) {
	spec, err := rel.spec()
	if err != nil {
		return nil, err
	}

	var p *Profile
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, "users", userID, "user"); err != nil {
			return err
		}
		res := tx.Table(spec.table).Where("user_id = ? AND target_id = ?", userID, targetID).Delete(&db.LedgerEdge{})
		if res.Error != nil {
			return errors.Wrapf(res.Error, "delete %s edge", spec.name)
		}
		p, err = l.profile(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListMembers returns target ids in insertion order.
func (l *Ledger) ListMembers(ctx context.Context, userID uint64, rel Relation) ([]uint64, error) {
	spec, err := rel.spec()
	if err != nil {
		return nil, err
	}

	tx := l.db.WithContext(ctx)
	if err := ensureExists(tx, "users", userID, "user"); err != nil {
		return nil, err
	}
	return l.memberIDs(tx, userID, spec)
}

func (l *Ledger) Events(ctx context.Context, userID uint64, rel Relation) ([]db.Event, error) {
	spec, err := rel.spec()
	if err != nil {
		return nil, err
	}
	if spec.kind != kindEvent {
		return nil, validationError(fmt.Sprintf("%s does not hold events", spec.name))
	}

	tx := l.db.WithContext(ctx)
	if err := ensureExists(tx, "users", userID, "user"); err != nil {
		return nil, err
	}
	return l.events(tx, userID, spec)
}

func (l *Ledger) Buckets(ctx context.Context, userID uint64, rel Relation) ([]db.BucketItem, error) {
	spec, err := rel.spec()
	if err != nil {
		return nil, err
	}
	if spec.kind != kindBucket {
		return nil, validationError(fmt.Sprintf("%s does not hold bucket items", spec.name))
	}

	tx := l.db.WithContext(ctx)
	if err := ensureExists(tx, "users", userID, "user"); err != nil {
		return nil, err
	}
	return l.buckets(tx, userID, spec)
}

// Holders walks a relation backwards: the users that hold targetID.
func (l *Ledger) Holders(ctx context.Context, targetID uint64, rel Relation) ([]db.User, error) {
	spec, err := rel.spec()
	if err != nil {
		return nil, err
	}

	sql, args, err := squirrel.
		Select("u.*").From("users u").
		Join(spec.table + " l ON l.user_id = u.id").
		Where(squirrel.Eq{"l.target_id": targetID}).
		OrderBy("l.created_at", "l.user_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	users := make([]db.User, 0)
	if err := l.db.WithContext(ctx).Raw(sql, args...).Scan(&users).Error; err != nil {
		return nil, errors.Wrapf(err, "scan %s holders", spec.name)
	}
	return users, nil
}

func (l *Ledger) AuthorOwns(ctx context.Context, userID, eventID uint64) (bool, error) {
	return l.authorOwns(l.db.WithContext(ctx), userID, eventID)
}

func (l *Ledger) authorOwns(tx *gorm.DB, userID, eventID uint64) (bool, error) {
	var count int64
	err := tx.Table(db.TableCreatedEvents).
		Where("user_id = ? AND target_id = ?", userID, eventID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "count created events")
	}
	return count > 0, nil
}

func (l *Ledger) add(tx *gorm.DB, userID, targetID uint64, spec relationSpec) error {
	edge := db.LedgerEdge{UserID: userID, TargetID: targetID}
	err := tx.Table(spec.table).Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error
	if err != nil {
		return errors.Wrapf(err, "insert %s edge", spec.name)
	}
	return nil
}

func (l *Ledger) profile(tx *gorm.DB, userID uint64) (*Profile, error) {
	p := Profile{}
	if err := tx.First(&p.User, userID).Error; err != nil {
		return nil, lookupError(err, "user", userID)
	}

	var err error
	if p.SavedEvents, err = l.events(tx, userID, relations[RelationSavedEvent]); err != nil {
		return nil, err
	}
	if p.SavedBuckets, err = l.buckets(tx, userID, relations[RelationSavedBucket]); err != nil {
		return nil, err
	}
	if p.CreatedEvents, err = l.events(tx, userID, relations[RelationCreatedEvent]); err != nil {
		return nil, err
	}
	if p.CompletedBuckets, err = l.buckets(tx, userID, relations[RelationCompletedBucket]); err != nil {
		return nil, err
	}
	return &p, nil
}

// memberIDs joins against the target table so edges of already deleted targets never show up.
func (l *Ledger) memberIDs(tx *gorm.DB, userID uint64, spec relationSpec) ([]uint64, error) {
	sql, args, err := squirrel.
		Select("l.target_id").From(spec.table + " l").
		Join(spec.kind.table() + " t ON t.id = l.target_id").
		Where(squirrel.Eq{"l.user_id": userID}).
		OrderBy("l.created_at", "l.target_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	ids := make([]uint64, 0)
	if err := tx.Raw(sql, args...).Scan(&ids).Error; err != nil {
		return nil, errors.Wrapf(err, "scan %s", spec.name)
	}
	return ids, nil
}

func (l *Ledger) events(tx *gorm.DB, userID uint64, spec relationSpec) ([]db.Event, error) {
	ids, err := l.memberIDs(tx, userID, spec)
	if err != nil {
		return nil, err
	}
	events := make([]db.Event, 0, len(ids))
	if len(ids) == 0 {
		return events, nil
	}
	if err := tx.Preload("Asset").Preload("Categories").Where("id IN ?", ids).Find(&events).Error; err != nil {
		return nil, errors.Wrapf(err, "load %s", spec.name)
	}
	sortByIDs(ids, events, func(e db.Event) uint64 { return e.ID })
	return events, nil
}

func (l *Ledger) buckets(tx *gorm.DB, userID uint64, spec relationSpec) ([]db.BucketItem, error) {
	ids, err := l.memberIDs(tx, userID, spec)
	if err != nil {
		return nil, err
	}
	buckets := make([]db.BucketItem, 0, len(ids))
	if len(ids) == 0 {
		return buckets, nil
	}
	if err := tx.Where("id IN ?", ids).Find(&buckets).Error; err != nil {
		return nil, errors.Wrapf(err, "load %s", spec.name)
	}
	sortByIDs(ids, buckets, func(b db.BucketItem) uint64 { return b.ID })
	return buckets, nil
}

// purgeUser drops every edge held by a user.
func (l *Ledger) purgeUser(tx *gorm.DB, userID uint64) error {
	for _, spec := range relations {
		if err := tx.Table(spec.table).Where("user_id = ?", userID).Delete(&db.LedgerEdge{}).Error; err != nil {
			return errors.Wrapf(err, "purge %s of user %d", spec.name, userID)
		}
	}
	return nil
}

// purgeTarget drops every edge pointing at an event or bucket item.
func (l *Ledger) purgeTarget(tx *gorm.DB, kind targetKind, targetID uint64) error {
	for _, spec := range relations {
		if spec.kind != kind {
			continue
		}
		if err := tx.Table(spec.table).Where("target_id = ?", targetID).Delete(&db.LedgerEdge{}).Error; err != nil {
			return errors.Wrapf(err, "purge %s of %s %d", spec.name, kind, targetID)
		}
	}
	return nil
}

func ensureExists(tx *gorm.DB, table string, id uint64, what string) error {
	var count int64
	if err := tx.Table(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return errors.Wrapf(err, "count %s", what)
	}
	if count == 0 {
		return errors.Wrapf(ErrNotFound, "%s %d", what, id)
	}
	return nil
}

func sortByIDs[T any](ids []uint64, items []T, id func(T) uint64) {
	pos := make(map[uint64]int, len(ids))
	for i, v := range ids {
		pos[v] = i
	}
	sort.SliceStable(items, func(i, j int) bool {
		return pos[id(items[i])] < pos[id(items[j])]
	})
}
