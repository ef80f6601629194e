package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/mamadbah2/consignments/internal/domain/models"
)

func TestDocumentRoundTrip(t *testing.T) {
	delivered := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	record := models.Consignment{
		ID:                 "ignored",
		ConsignmentNo:      "CN-1",
		ConsigneeName:      "Acme",
		NoOfArticles:       4,
		DeliveringDateTime: &delivered,
		Status:             models.StatusDelivered,
		PaymentStatus:      models.PaymentPaid,
		Freight:            120,
		Charges:            -5,
	}

	doc := toDocument("owner-1", record)
	assert.Equal(t, "owner-1", doc.OwnerID)
	assert.Equal(t, primitive.NilObjectID, doc.ID)
	require.NotNil(t, doc.NoOfArticles)
	assert.Equal(t, 4, *doc.NoOfArticles)
	assert.Equal(t, 0.0, doc.Charges)

	doc.ID = primitive.NewObjectID()
	back := doc.toModel()
	assert.Equal(t, doc.ID.Hex(), back.ID)
	assert.Equal(t, models.StatusDelivered, back.Status)
	assert.Equal(t, 120.0, back.Freight)
	assert.Equal(t, &delivered, back.DeliveringDateTime)
}

func TestDocumentWithoutArticlesDefaultsToOne(t *testing.T) {
	doc := consignmentDocument{ID: primitive.NewObjectID(), Status: "bogus"}

	record := doc.toModel()

	assert.Equal(t, models.DefaultNoOfArticles, record.NoOfArticles)
	assert.Equal(t, models.StatusReceived, record.Status)
	assert.Equal(t, models.PaymentDue, record.PaymentStatus)
}

func TestMongoDBRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("create assigns id", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		id, err := repo.Create(ctx, "owner-1", models.Consignment{ID: "client-chosen", ConsignmentNo: "CN-1"})

		require.NoError(mt, err)
		_, parseErr := primitive.ObjectIDFromHex(id)
		assert.NoError(mt, parseErr)
		assert.NotEqual(mt, "client-chosen", id)
	})

	mt.Run("create surfaces write errors", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 13, Message: "unauthorized"}))

		_, err := repo.Create(ctx, "owner-1", models.Consignment{})

		assert.Error(mt, err)
	})

	mt.Run("update replaces matched record", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := repo.Update(ctx, "owner-1", primitive.NewObjectID().Hex(), models.Consignment{ConsignmentNo: "CN-2"})

		assert.NoError(mt, err)
	})

	mt.Run("update of unknown id", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := repo.Update(ctx, "owner-1", primitive.NewObjectID().Hex(), models.Consignment{})

		assert.ErrorIs(mt, err, ErrNotFound)
	})

	mt.Run("malformed id never reaches the server", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)

		assert.ErrorIs(mt, repo.Update(ctx, "owner-1", "not-an-id", models.Consignment{}), ErrInvalidID)
		assert.ErrorIs(mt, repo.Delete(ctx, "owner-1", "not-an-id"), ErrInvalidID)
	})

	mt.Run("delete", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		assert.NoError(mt, repo.Delete(ctx, "owner-1", primitive.NewObjectID().Hex()))
		assert.ErrorIs(mt, repo.Delete(ctx, "owner-1", primitive.NewObjectID().Hex()), ErrNotFound)
	})

	mt.Run("list decodes documents", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		first := primitive.NewObjectID()
		second := primitive.NewObjectID()
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: first},
				{Key: "ownerId", Value: "owner-1"},
				{Key: "consigneeName", Value: "Acme"},
				{Key: "paymentStatus", Value: "Due"},
				{Key: "freight", Value: 100.0},
			},
			bson.D{
				{Key: "_id", Value: second},
				{Key: "ownerId", Value: "owner-1"},
				{Key: "noOfArticles", Value: 3},
				{Key: "status", Value: "Delivered"},
			},
		))

		records, err := repo.List(ctx, "owner-1")

		require.NoError(mt, err)
		require.Len(mt, records, 2)
		assert.Equal(mt, first.Hex(), records[0].ID)
		assert.Equal(mt, "Acme", records[0].ConsigneeName)
		assert.Equal(mt, 1, records[0].NoOfArticles)
		assert.Equal(mt, 100.0, records[0].Freight)
		assert.Equal(mt, 3, records[1].NoOfArticles)
		assert.Equal(mt, models.StatusDelivered, records[1].Status)
	})

	mt.Run("owners", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "values", Value: bson.A{"owner-1", "", "owner-2"}},
		))

		owners, err := repo.Owners(ctx)

		require.NoError(mt, err)
		assert.Equal(mt, []string{"owner-1", "owner-2"}, owners)
	})

	mt.Run("subscribe fails when stream cannot open", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    40573,
			Name:    "Location40573",
			Message: "The $changeStream stage is only supported on replica sets",
		}))

		_, err := repo.Subscribe(ctx, "owner-1")

		assert.Error(mt, err)
	})

	mt.Run("subscribe emits the initial full set", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		id := primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(42, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: id},
				{Key: "ownerId", Value: "owner-1"},
			}),
		)

		subCtx, cancel := context.WithCancel(ctx)
		snapshots, err := repo.Subscribe(subCtx, "owner-1")
		require.NoError(mt, err)

		snapshot := nextSnapshot(mt, snapshots)
		require.NoError(mt, snapshot.Err)
		require.Len(mt, snapshot.Records, 1)
		assert.Equal(mt, id.Hex(), snapshot.Records[0].ID)

		cancel()
		drain(mt, snapshots)
	})

	mt.Run("subscribe reloads after an insert event", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		first, second := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(42, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, ownedDoc(first)),
			mtest.CreateCursorResponse(42, ns, mtest.NextBatch, changeDoc("token-1", "insert", second)),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, ownedDoc(first), ownedDoc(second)),
		)

		subCtx, cancel := context.WithCancel(ctx)
		snapshots, err := repo.Subscribe(subCtx, "owner-1")
		require.NoError(mt, err)

		initial := nextSnapshot(mt, snapshots)
		require.NoError(mt, initial.Err)
		require.Len(mt, initial.Records, 1)

		reloaded := nextSnapshot(mt, snapshots)
		require.NoError(mt, reloaded.Err)
		require.Len(mt, reloaded.Records, 2)
		assert.Equal(mt, second.Hex(), reloaded.Records[1].ID)

		cancel()
		drain(mt, snapshots)
	})

	mt.Run("subscribe skips deletes of records the owner does not have", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		kept, removed := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(42, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, ownedDoc(kept), ownedDoc(removed)),
			mtest.CreateCursorResponse(42, ns, mtest.NextBatch, changeDoc("token-1", "delete", primitive.NewObjectID())),
			mtest.CreateCursorResponse(42, ns, mtest.NextBatch, changeDoc("token-2", "delete", removed)),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, ownedDoc(kept)),
		)

		subCtx, cancel := context.WithCancel(ctx)
		snapshots, err := repo.Subscribe(subCtx, "owner-1")
		require.NoError(mt, err)

		initial := nextSnapshot(mt, snapshots)
		require.NoError(mt, initial.Err)
		require.Len(mt, initial.Records, 2)

		reloaded := nextSnapshot(mt, snapshots)
		require.NoError(mt, reloaded.Err)
		require.Len(mt, reloaded.Records, 1)
		assert.Equal(mt, kept.Hex(), reloaded.Records[0].ID)

		cancel()
		drain(mt, snapshots)
	})

	mt.Run("subscribe reports a stream failure once and closes", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(42, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, ownedDoc(primitive.NewObjectID())),
			mtest.CreateCommandErrorResponse(mtest.CommandError{
				Code:    280,
				Name:    "ChangeStreamFatalError",
				Message: "cannot resume stream",
			}),
		)

		snapshots, err := repo.Subscribe(ctx, "owner-1")
		require.NoError(mt, err)

		require.NoError(mt, nextSnapshot(mt, snapshots).Err)
		failed := nextSnapshot(mt, snapshots)
		require.Error(mt, failed.Err)
		assert.Contains(mt, failed.Err.Error(), "change stream")
		assertClosed(mt, snapshots)
	})

	mt.Run("subscribe reports an invalidated stream and closes", func(mt *mtest.T) {
		repo := newRepository(mt.Coll, nil)
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(42, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(42, ns, mtest.NextBatch, bson.D{
				{Key: "_id", Value: bson.D{{Key: "_data", Value: "token-1"}}},
				{Key: "operationType", Value: "invalidate"},
			}),
		)

		snapshots, err := repo.Subscribe(ctx, "owner-1")
		require.NoError(mt, err)

		require.NoError(mt, nextSnapshot(mt, snapshots).Err)
		failed := nextSnapshot(mt, snapshots)
		require.Error(mt, failed.Err)
		assert.Contains(mt, failed.Err.Error(), "invalidated")
		assertClosed(mt, snapshots)
	})
}

func ownedDoc(id primitive.ObjectID) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "ownerId", Value: "owner-1"},
	}
}

func changeDoc(token, operation string, id primitive.ObjectID) bson.D {
	return bson.D{
		{Key: "_id", Value: bson.D{{Key: "_data", Value: token}}},
		{Key: "operationType", Value: operation},
		{Key: "documentKey", Value: bson.D{{Key: "_id", Value: id}}},
	}
}

func nextSnapshot(t testing.TB, snapshots <-chan models.Snapshot) models.Snapshot {
	t.Helper()
	select {
	case snapshot, ok := <-snapshots:
		require.True(t, ok, "subscription closed early")
		return snapshot
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot")
	}
	return models.Snapshot{}
}

func assertClosed(t testing.TB, snapshots <-chan models.Snapshot) {
	t.Helper()
	select {
	case _, ok := <-snapshots:
		assert.False(t, ok, "unexpected snapshot after failure")
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not close")
	}
}

func drain(t testing.TB, snapshots <-chan models.Snapshot) {
	t.Helper()
	drained := make(chan struct{})
	go func() {
		for range snapshots {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not close after cancel")
	}
}
