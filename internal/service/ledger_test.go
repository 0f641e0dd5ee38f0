package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

func eventIDs(events []db.Event) []uint64 {
	ids := make([]uint64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

func bucketIDs(buckets []db.BucketItem) []uint64 {
	ids := make([]uint64, 0, len(buckets))
	for _, b := range buckets {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestLedgerAddMember(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.createUser(t, "Ann", "ann@example.com")
	bob := env.createUser(t, "Bob", "bob@example.com")
	party := env.createEvent(t, bob.User.ID, "Party", env.now.Add(72*time.Hour))

	p, err := env.ledger.AddMember(ctx, ann.User.ID, party.ID, RelationSavedEvent)
	require.NoError(t, err)
	assert.Equal(t, []uint64{party.ID}, eventIDs(p.SavedEvents))
	assert.Equal(t, "Party", p.SavedEvents[0].Title)
	assert.NotEmpty(t, p.SavedEvents[0].Asset.URL())

	t.Run("idempotent", func(t *testing.T) {
		p, err := env.ledger.AddMember(ctx, ann.User.ID, party.ID, RelationSavedEvent)
		require.NoError(t, err)
		assert.Equal(t, []uint64{party.ID}, eventIDs(p.SavedEvents))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.ledger.AddMember(ctx, 999, party.ID, RelationSavedEvent)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := env.ledger.AddMember(ctx, ann.User.ID, 999, RelationSavedEvent)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = env.ledger.AddMember(ctx, ann.User.ID, 999, RelationCompletedBucket)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown relation", func(t *testing.T) {
		_, err := env.ledger.AddMember(ctx, ann.User.ID, party.ID, Relation(42))
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestLedgerRemoveMember(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.createUser(t, "Ann", "ann@example.com")
	hike, err := env.catalog.CreateBucket(ctx, "Hike the gorge")
	require.NoError(t, err)

	_, err = env.ledger.AddMember(ctx, ann.User.ID, hike.ID, RelationSavedBucket)
	require.NoError(t, err)

	p, err := env.ledger.RemoveMember(ctx, ann.User.ID, hike.ID, RelationSavedBucket)
	require.NoError(t, err)
	assert.Empty(t, p.SavedBuckets)

	t.Run("absent pair is a no-op", func(t *testing.T) {
		p, err := env.ledger.RemoveMember(ctx, ann.User.ID, hike.ID, RelationSavedBucket)
		require.NoError(t, err)
		assert.Empty(t, p.SavedBuckets)

		p, err = env.ledger.RemoveMember(ctx, ann.User.ID, 999, RelationCompletedBucket)
		require.NoError(t, err)
		assert.Empty(t, p.CompletedBuckets)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.ledger.RemoveMember(ctx, 999, hike.ID, RelationSavedBucket)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLedgerListMembersKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.createUser(t, "Ann", "ann@example.com")

	first, err := env.catalog.CreateBucket(ctx, "first")
	require.NoError(t, err)
	second, err := env.catalog.CreateBucket(ctx, "second")
	require.NoError(t, err)

	_, err = env.ledger.AddMember(ctx, ann.User.ID, second.ID, RelationCompletedBucket)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	p, err := env.ledger.AddMember(ctx, ann.User.ID, first.ID, RelationCompletedBucket)
	require.NoError(t, err)

	ids, err := env.ledger.ListMembers(ctx, ann.User.ID, RelationCompletedBucket)
	require.NoError(t, err)
	assert.Equal(t, []uint64{second.ID, first.ID}, ids)
	assert.Equal(t, ids, bucketIDs(p.CompletedBuckets))

	buckets, err := env.ledger.Buckets(ctx, ann.User.ID, RelationCompletedBucket)
	require.NoError(t, err)
	assert.Equal(t, ids, bucketIDs(buckets))

	_, err = env.ledger.ListMembers(ctx, 999, RelationCompletedBucket)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerRelationsAreIndependent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.createUser(t, "Ann", "ann@example.com")
	hike, err := env.catalog.CreateBucket(ctx, "Hike the gorge")
	require.NoError(t, err)

	p, err := env.ledger.AddMember(ctx, ann.User.ID, hike.ID, RelationCompletedBucket)
	require.NoError(t, err)
	assert.Equal(t, []uint64{hike.ID}, bucketIDs(p.CompletedBuckets))
	assert.Empty(t, p.SavedBuckets)

	_, err = env.ledger.Events(ctx, ann.User.ID, RelationSavedBucket)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.ledger.Buckets(ctx, ann.User.ID, RelationCreatedEvent)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLedgerHoldersAndAuthorship(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.createUser(t, "Ann", "ann@example.com")
	bob := env.createUser(t, "Bob", "bob@example.com")
	party := env.createEvent(t, ann.User.ID, "Party", env.now.Add(72*time.Hour))

	_, err := env.ledger.AddMember(ctx, bob.User.ID, party.ID, RelationSavedEvent)
	require.NoError(t, err)

	holders, err := env.ledger.Holders(ctx, party.ID, RelationSavedEvent)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, bob.User.ID, holders[0].ID)
	assert.Equal(t, "bob@example.com", holders[0].Email)

	owns, err := env.ledger.AuthorOwns(ctx, ann.User.ID, party.ID)
	require.NoError(t, err)
	assert.True(t, owns)

	owns, err = env.ledger.AuthorOwns(ctx, bob.User.ID, party.ID)
	require.NoError(t, err)
	assert.False(t, owns)
}

func TestLedgerCascades(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ann := env.createUser(t, "Ann", "ann@example.com")
	bob := env.createUser(t, "Bob", "bob@example.com")
	party := env.createEvent(t, ann.User.ID, "Party", env.now.Add(72*time.Hour))
	hike, err := env.catalog.CreateBucket(ctx, "Hike the gorge")
	require.NoError(t, err)

	_, err = env.ledger.AddMember(ctx, bob.User.ID, party.ID, RelationSavedEvent)
	require.NoError(t, err)
	_, err = env.ledger.AddMember(ctx, bob.User.ID, hike.ID, RelationSavedBucket)
	require.NoError(t, err)
	_, err = env.ledger.AddMember(ctx, ann.User.ID, hike.ID, RelationCompletedBucket)
	require.NoError(t, err)

	t.Run("bucket removal drops its edges", func(t *testing.T) {
		_, err := env.catalog.DeleteBucket(ctx, hike.ID)
		require.NoError(t, err)
		assert.Zero(t, env.count(t, db.TableSavedBuckets))
		assert.Zero(t, env.count(t, db.TableCompletedBuckets))
	})

	t.Run("user removal drops their edges", func(t *testing.T) {
		_, err := env.users.Delete(ctx, bob.User.ID)
		require.NoError(t, err)
		assert.Zero(t, env.count(t, db.TableSavedEvents))

		holders, err := env.ledger.Holders(ctx, party.ID, RelationSavedEvent)
		require.NoError(t, err)
		assert.Empty(t, holders)
	})

	t.Run("event removal drops its edges", func(t *testing.T) {
		_, err := env.catalog.DeleteEvent(ctx, ann.User.ID, party.ID)
		require.NoError(t, err)
		assert.Zero(t, env.count(t, db.TableCreatedEvents))

		p, err := env.users.Get(ctx, ann.User.ID)
		require.NoError(t, err)
		assert.Empty(t, p.CreatedEvents)
	})
}
