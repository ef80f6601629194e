package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
)

// Subscribe streams the owner's complete record set. The first snapshot is the
// current set; another full snapshot follows every change that concerns the
// owner. Delete events carry only the document key, so they are matched
// against the ids of the last snapshot. Cancel ctx to unsubscribe. If the change stream fails, one
// snapshot carrying the error is delivered and the channel is closed; the
// stream is not restarted. Call Subscribe again for a fresh stream.
//
// Change streams require a replica set or sharded deployment.
func (r *MongoDBRepository) Subscribe(ctx context.Context, ownerID string) (<-chan models.Snapshot, error) {
	// Deletes carry no fullDocument and pass the server-side filter.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "fullDocument.ownerId", Value: ownerID}},
			bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"delete", "drop", "invalidate"}}}}},
		}}}}},
	}

	// The stream is opened before the initial read so no change is lost in
	// between.
	stream, err := r.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	out := make(chan models.Snapshot)
	go r.pump(ctx, ownerID, stream, out)
	return out, nil
}

func (r *MongoDBRepository) pump(ctx context.Context, ownerID string, stream *mongo.ChangeStream, out chan<- models.Snapshot) {
	defer close(out)
	defer func() {
		// ctx may already be cancelled; closing needs its own context.
		if err := stream.Close(context.Background()); err != nil {
			r.logger.Debug("change stream close failed", zap.Error(err))
		}
	}()

	logger := r.logger.With(zap.String("owner_id", ownerID))

	known, ok := r.emit(ctx, ownerID, out)
	if !ok {
		return
	}

	for stream.Next(ctx) {
		var event changeEvent
		if err := stream.Decode(&event); err != nil {
			logger.Debug("undecodable change event", zap.Error(err))
		}
		switch event.OperationType {
		case "invalidate":
			send(ctx, out, models.Snapshot{Err: errors.New("change stream invalidated")})
			return
		case "delete":
			if _, owned := known[event.DocumentKey.ID.Hex()]; !owned {
				continue
			}
		}
		if known, ok = r.emit(ctx, ownerID, out); !ok {
			return
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		logger.Error("change stream failed", zap.Error(err))
		send(ctx, out, models.Snapshot{Err: fmt.Errorf("change stream: %w", err)})
	}
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID primitive.ObjectID `bson:"_id"`
	} `bson:"documentKey"`
}

// emit reloads the full set and delivers it. It returns the delivered ids and
// whether the stream should keep going.
func (r *MongoDBRepository) emit(ctx context.Context, ownerID string, out chan<- models.Snapshot) (map[string]struct{}, bool) {
	records, err := r.List(ctx, ownerID)
	if err != nil {
		if ctx.Err() == nil {
			send(ctx, out, models.Snapshot{Err: err})
		}
		return nil, false
	}

	ids := make(map[string]struct{}, len(records))
	for _, record := range records {
		ids[record.ID] = struct{}{}
	}
	return ids, send(ctx, out, models.Snapshot{Records: records})
}

func send(ctx context.Context, out chan<- models.Snapshot, snapshot models.Snapshot) bool {
	select {
	case out <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}
