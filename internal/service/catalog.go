package service

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

type ItemKind string

const (
	ItemEvent  ItemKind = "event"
	ItemBucket ItemKind = "bucket"
)

// Item is either an event or a bucket item; exactly one pointer is set, matching Kind.
type Item struct {
	Kind   ItemKind
	Event  *db.Event
	Bucket *db.BucketItem
}

type CreateEventInput struct {
	Title       string
	HostName    string
	Date        int64
	Location    string
	Description string
	Categories  []uint64
	Image       string
}

type UpdateBucketInput struct {
	Description *string
	Status      *bool
}

// Catalog is the CRUD side of events, bucket items and categories.
type Catalog struct {
	db     *gorm.DB
	ledger *Ledger
	assets *Assets
	pick   func(n int) int
	logger *zap.SugaredLogger
}

func NewCatalog(gdb *gorm.DB, ledger *Ledger, assets *Assets, l *zap.SugaredLogger) *Catalog {
	return &Catalog{
		db:     gdb,
		ledger: ledger,
		assets: assets,
		pick:   rand.IntN,
		logger: l,
	}
}

func (in CreateEventInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return validationError("title is required")
	case strings.TrimSpace(in.HostName) == "":
		return validationError("host_name is required")
	case in.Date <= 0:
		return validationError("date must be a positive unix timestamp")
	case strings.TrimSpace(in.Location) == "":
		return validationError("location is required")
	case strings.TrimSpace(in.Description) == "":
		return validationError("description is required")
	case in.Image == "":
		return validationError("image is required")
	}
	return nil
}

// CreateEvent uploads the image first and only then writes the asset, the
// event, its category links and the authorship edge in one transaction, so a
// failed upload or write leaves no rows behind.
func (c *Catalog) CreateEvent(ctx context.Context, userID uint64, in CreateEventInput) (*db.Event, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	tx := c.db.WithContext(ctx)
	if err := ensureExists(tx, "users", userID, "user"); err != nil {
		return nil, err
	}
	categories, err := c.categoriesByID(tx, in.Categories)
	if err != nil {
		return nil, err
	}

	asset, err := c.assets.Upload(ctx, in.Image)
	if err != nil {
		return nil, err
	}

	event := db.Event{
		Title:       strings.TrimSpace(in.Title),
		HostName:    strings.TrimSpace(in.HostName),
		Date:        in.Date,
		Location:    strings.TrimSpace(in.Location),
		Description: strings.TrimSpace(in.Description),
	}
	err = tx.Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, "users", userID, "user"); err != nil {
			return err
		}
		if err := tx.Create(asset).Error; err != nil {
			return errors.Wrap(err, "create asset")
		}
		event.AssetID = asset.ID
		if err := tx.Omit(clause.Associations).Create(&event).Error; err != nil {
			return errors.Wrap(err, "create event")
		}
		if len(categories) > 0 {
			if err := tx.Model(&event).Association("Categories").Append(categories); err != nil {
				return errors.Wrap(err, "link categories")
			}
		}
		return c.ledger.add(tx, userID, event.ID, relations[RelationCreatedEvent])
	})
	if err != nil {
		return nil, err
	}

	event.Asset = *asset
	event.Categories = categories
	c.logger.Infow("event created", "event_id", event.ID, "user_id", userID, "asset", asset.URL())
	return &event, nil
}

func (c *Catalog) GetEvent(ctx context.Context, id uint64) (*db.Event, error) {
	return c.getEvent(c.db.WithContext(ctx), id)
}

func (c *Catalog) ListEvents(ctx context.Context) ([]db.Event, error) {
	events := make([]db.Event, 0)
	err := c.withEventAssociations(c.db.WithContext(ctx)).Order("date, id").Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return events, nil
}

// SearchEvents matches term against event titles.
func (c *Catalog) SearchEvents(ctx context.Context, term string) ([]db.Event, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, validationError("search term is required")
	}

	where, args, err := squirrel.Like{"title": "%" + term + "%"}.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	events := make([]db.Event, 0)
	err = c.withEventAssociations(c.db.WithContext(ctx)).Where(where, args...).Order("date, id").Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "search events")
	}
	return events, nil
}

// DeleteEvent is only allowed for the event's author.
func (c *Catalog) DeleteEvent(ctx context.Context, userID, eventID uint64) (*db.Event, error) {
	var event *db.Event
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, "users", userID, "user"); err != nil {
			return err
		}
		var err error
		if event, err = c.getEvent(tx, eventID); err != nil {
			return err
		}
		owns, err := c.ledger.authorOwns(tx, userID, eventID)
		if err != nil {
			return err
		}
		if !owns {
			return errors.Wrapf(ErrForbidden, "user %d did not create event %d", userID, eventID)
		}
		return c.removeEvent(tx, eventID)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Infow("event deleted", "event_id", eventID, "user_id", userID)
	return event, nil
}

// RandomItem picks uniformly among all events and bucket items.
func (c *Catalog) RandomItem(ctx context.Context) (*Item, error) {
	events, err := c.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	buckets, err := c.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}

	total := len(events) + len(buckets)
	if total == 0 {
		return nil, errors.Wrap(ErrNotFound, "no events or bucket items")
	}

	i := c.pick(total)
	if i < len(events) {
		return &Item{Kind: ItemEvent, Event: &events[i]}, nil
	}
	return &Item{Kind: ItemBucket, Bucket: &buckets[i-len(events)]}, nil
}

func (c *Catalog) AssignCategory(ctx context.Context, eventID, categoryID uint64) (*db.Event, error) {
	return c.linkCategory(ctx, eventID, categoryID, func(a *gorm.Association, category *db.Category) error {
		return a.Append(category)
	})
}

func (c *Catalog) UnassignCategory(ctx context.Context, eventID, categoryID uint64) (*db.Event, error) {
	return c.linkCategory(ctx, eventID, categoryID, func(a *gorm.Association, category *db.Category) error {
		return a.Delete(category)
	})
}

func (c *Catalog) linkCategory(ctx context.Context, eventID, categoryID uint64, op func(*gorm.Association, *db.Category) error) (*db.Event, error) {
	var event *db.Event
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureExists(tx, "events", eventID, "event"); err != nil {
			return err
		}
		category := db.Category{}
		if err := tx.First(&category, categoryID).Error; err != nil {
			return lookupError(err, "category", categoryID)
		}
		model := db.Event{GormForkedModel: db.GormForkedModel{ID: eventID}}
		if err := op(tx.Model(&model).Association("Categories"), &category); err != nil {
			return errors.Wrap(err, "update event categories")
		}
		var err error
		event, err = c.getEvent(tx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (c *Catalog) CreateBucket(ctx context.Context, description string) (*db.BucketItem, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, validationError("description is required")
	}

	bucket := db.BucketItem{Description: description}
	if err := c.db.WithContext(ctx).Create(&bucket).Error; err != nil {
		return nil, errors.Wrap(err, "create bucket item")
	}
	return &bucket, nil
}

func (c *Catalog) GetBucket(ctx context.Context, id uint64) (*db.BucketItem, error) {
	bucket := db.BucketItem{}
	if err := c.db.WithContext(ctx).First(&bucket, id).Error; err != nil {
		return nil, lookupError(err, "bucket item", id)
	}
	return &bucket, nil
}

func (c *Catalog) ListBuckets(ctx context.Context) ([]db.BucketItem, error) {
	buckets := make([]db.BucketItem, 0)
	if err := c.db.WithContext(ctx).Order("id").Find(&buckets).Error; err != nil {
		return nil, errors.Wrap(err, "list bucket items")
	}
	return buckets, nil
}

func (c *Catalog) UpdateBucket(ctx context.Context, id uint64, in UpdateBucketInput) (*db.BucketItem, error) {
	updates := map[string]interface{}{}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		if description == "" {
			return nil, validationError("description must not be empty")
		}
		updates["description"] = description
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}

	bucket := db.BucketItem{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bucket, id).Error; err != nil {
			return lookupError(err, "bucket item", id)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&bucket).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update bucket item")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (c *Catalog) DeleteBucket(ctx context.Context, id uint64) (*db.BucketItem, error) {
	bucket := db.BucketItem{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&bucket, id).Error; err != nil {
			return lookupError(err, "bucket item", id)
		}
		if err := c.ledger.purgeTarget(tx, kindBucket, id); err != nil {
			return err
		}
		if err := tx.Delete(&db.BucketItem{}, id).Error; err != nil {
			return errors.Wrapf(err, "delete bucket item %d", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bucket, nil
}

func (c *Catalog) CreateCategory(ctx context.Context, description, color string) (*db.Category, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, validationError("description is required")
	}
	color = strings.TrimSpace(color)
	if color == "" {
		return nil, validationError("color is required")
	}

	category := db.Category{Description: description, Color: color}
	if err := c.db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, errors.Wrap(err, "create category")
	}
	return &category, nil
}

func (c *Catalog) GetCategory(ctx context.Context, id uint64) (*db.Category, error) {
	category := db.Category{}
	if err := c.db.WithContext(ctx).First(&category, id).Error; err != nil {
		return nil, lookupError(err, "category", id)
	}
	return &category, nil
}

func (c *Catalog) ListCategories(ctx context.Context) ([]db.Category, error) {
	categories := make([]db.Category, 0)
	if err := c.db.WithContext(ctx).Order("id").Find(&categories).Error; err != nil {
		return nil, errors.Wrap(err, "list categories")
	}
	return categories, nil
}

// CategoryEvents lists the events tagged with a category.
func (c *Catalog) CategoryEvents(ctx context.Context, id uint64) ([]db.Event, error) {
	tx := c.db.WithContext(ctx)
	if err := ensureExists(tx, "categories", id, "category"); err != nil {
		return nil, err
	}

	sub := squirrel.Select("event_id").From("event_categories").Where(squirrel.Eq{"category_id": id})
	where, args, err := squirrel.Expr("id IN (?)", sub).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	events := make([]db.Event, 0)
	if err := c.withEventAssociations(tx).Where(where, args...).Order("date, id").Find(&events).Error; err != nil {
		return nil, errors.Wrap(err, "list category events")
	}
	return events, nil
}

func (c *Catalog) DeleteCategory(ctx context.Context, id uint64) (*db.Category, error) {
	category := db.Category{}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&category, id).Error; err != nil {
			return lookupError(err, "category", id)
		}
		sql, args, err := squirrel.Delete("event_categories").Where(squirrel.Eq{"category_id": id}).ToSql()
		if err != nil {
			return errors.Wrap(err, "build sql")
		}
		if err := tx.Exec(sql, args...).Error; err != nil {
			return errors.Wrap(err, "unlink category")
		}
		if err := tx.Delete(&db.Category{}, id).Error; err != nil {
			return errors.Wrapf(err, "delete category %d", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// removeEvent drops an event with its category links and every ledger edge
// pointing at it. The asset row stays; assets are never mutated or removed.
func (c *Catalog) removeEvent(tx *gorm.DB, eventID uint64) error {
	model := db.Event{GormForkedModel: db.GormForkedModel{ID: eventID}}
	if err := tx.Model(&model).Association("Categories").Clear(); err != nil {
		return errors.Wrapf(err, "unlink categories of event %d", eventID)
	}
	if err := c.ledger.purgeTarget(tx, kindEvent, eventID); err != nil {
		return err
	}
	if err := tx.Delete(&db.Event{}, eventID).Error; err != nil {
		return errors.Wrapf(err, "delete event %d", eventID)
	}
	return nil
}

func (c *Catalog) getEvent(tx *gorm.DB, id uint64) (*db.Event, error) {
	event := db.Event{}
	if err := c.withEventAssociations(tx).First(&event, id).Error; err != nil {
		return nil, lookupError(err, "event", id)
	}
	return &event, nil
}

func (c *Catalog) withEventAssociations(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Asset").Preload("Categories", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("categories.id")
	})
}

func (c *Catalog) categoriesByID(tx *gorm.DB, ids []uint64) ([]db.Category, error) {
	categories := make([]db.Category, 0, len(ids))
	if len(ids) == 0 {
		return categories, nil
	}
	if err := tx.Where("id IN ?", ids).Order("id").Find(&categories).Error; err != nil {
		return nil, errors.Wrap(err, "load categories")
	}

	found := make(map[uint64]struct{}, len(categories))
	for _, category := range categories {
		found[category.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, errors.Wrapf(ErrNotFound, "category %d", id)
		}
	}
	return categories, nil
}
