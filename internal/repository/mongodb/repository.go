package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/consignments/internal/domain/models"
)

const consignmentsCollection = "consignments"

var (
	// ErrNotFound indicates no record with that id exists for the owner.
	ErrNotFound = errors.New("consignment not found")
	// ErrInvalidID indicates an id that the store could never have assigned.
	ErrInvalidID = errors.New("invalid consignment id")
)

// Repository defines the record store operations used by the dashboard.
type Repository interface {
	Create(ctx context.Context, ownerID string, record models.Consignment) (string, error)
	Update(ctx context.Context, ownerID, id string, record models.Consignment) error
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string) ([]models.Consignment, error)
	Subscribe(ctx context.Context, ownerID string) (<-chan models.Snapshot, error)
	Owners(ctx context.Context) ([]string, error)
}

// MongoDBRepository implements the Repository interface for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := newRepository(client.Database(dbName).Collection(consignmentsCollection), logger)
	repo.client = client
	return repo, nil
}

func newRepository(coll *mongo.Collection, logger *zap.Logger) *MongoDBRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoDBRepository{coll: coll, logger: logger}
}

// Create stores a new record for the owner and returns the assigned id. Any id
// already present on record is ignored.
func (r *MongoDBRepository) Create(ctx context.Context, ownerID string, record models.Consignment) (string, error) {
	doc := toDocument(ownerID, record)
	doc.ID = primitive.NilObjectID

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert consignment: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// Update replaces every stored field of the record. It is not a patch: fields
// missing from record are stored as their zero value.
func (r *MongoDBRepository) Update(ctx context.Context, ownerID, id string, record models.Consignment) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	doc := toDocument(ownerID, record)
	doc.ID = oid

	res, err := r.coll.ReplaceOne(ctx, ownedBy(ownerID, oid), doc)
	if err != nil {
		return fmt.Errorf("failed to replace consignment %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the record. Deletion is immediate and permanent.
func (r *MongoDBRepository) Delete(ctx context.Context, ownerID, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := r.coll.DeleteOne(ctx, ownedBy(ownerID, oid))
	if err != nil {
		return fmt.Errorf("failed to delete consignment %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every record of the owner in no particular order.
func (r *MongoDBRepository) List(ctx context.Context, ownerID string) ([]models.Consignment, error) {
	cursor, err := r.coll.Find(ctx, bson.D{{Key: "ownerId", Value: ownerID}})
	if err != nil {
		return nil, fmt.Errorf("failed to query consignments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []consignmentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode consignments: %w", err)
	}

	records := make([]models.Consignment, 0, len(docs))
	for _, doc := range docs {
		records = append(records, doc.toModel())
	}
	return records, nil
}

// Owners lists every owner id that has at least one record.
func (r *MongoDBRepository) Owners(ctx context.Context) ([]string, error) {
	values, err := r.coll.Distinct(ctx, "ownerId", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}

	owners := make([]string, 0, len(values))
	for _, v := range values {
		if owner, ok := v.(string); ok && owner != "" {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

func ownedBy(ownerID string, oid primitive.ObjectID) bson.D {
	return bson.D{{Key: "_id", Value: oid}, {Key: "ownerId", Value: ownerID}}
}

// consignmentDocument is the stored shape of a record. NoOfArticles is a
// pointer because documents written before the field existed lack it.
type consignmentDocument struct {
	ID                        primitive.ObjectID `bson:"_id,omitempty"`
	OwnerID                   string             `bson:"ownerId"`
	ConsignmentNo             string             `bson:"consignmentNo"`
	ConsignorName             string             `bson:"consignorName"`
	ConsigneeName             string             `bson:"consigneeName"`
	NoOfArticles              *int               `bson:"noOfArticles,omitempty"`
	ConsignmentDateTime       *time.Time         `bson:"consignmentDateTime"`
	WarehouseReceivedDateTime *time.Time         `bson:"warehouseReceivedDateTime"`
	ReceivingDateTime         *time.Time         `bson:"receivingDateTime"`
	DeliveringDateTime        *time.Time         `bson:"deliveringDateTime"`
	Status                    string             `bson:"status"`
	PaymentStatus             string             `bson:"paymentStatus"`
	Freight                   float64            `bson:"freight"`
	Charges                   float64            `bson:"charges"`
	StdCharges                float64            `bson:"stdCharges"`
	Remarks                   string             `bson:"remarks"`
}

func toDocument(ownerID string, record models.Consignment) consignmentDocument {
	record = record.Normalize()
	articles := record.NoOfArticles

	return consignmentDocument{
		OwnerID:                   ownerID,
		ConsignmentNo:             record.ConsignmentNo,
		ConsignorName:             record.ConsignorName,
		ConsigneeName:             record.ConsigneeName,
		NoOfArticles:              &articles,
		ConsignmentDateTime:       record.ConsignmentDateTime,
		WarehouseReceivedDateTime: record.WarehouseReceivedDateTime,
		ReceivingDateTime:         record.ReceivingDateTime,
		DeliveringDateTime:        record.DeliveringDateTime,
		Status:                    string(record.Status),
		PaymentStatus:             string(record.PaymentStatus),
		Freight:                   record.Freight,
		Charges:                   record.Charges,
		StdCharges:                record.StdCharges,
		Remarks:                   record.Remarks,
	}
}

func (d consignmentDocument) toModel() models.Consignment {
	articles := models.DefaultNoOfArticles
	if d.NoOfArticles != nil {
		articles = *d.NoOfArticles
	}

	return models.Consignment{
		ID:                        d.ID.Hex(),
		ConsignmentNo:             d.ConsignmentNo,
		ConsignorName:             d.ConsignorName,
		ConsigneeName:             d.ConsigneeName,
		NoOfArticles:              articles,
		ConsignmentDateTime:       d.ConsignmentDateTime,
		WarehouseReceivedDateTime: d.WarehouseReceivedDateTime,
		ReceivingDateTime:         d.ReceivingDateTime,
		DeliveringDateTime:        d.DeliveringDateTime,
		Status:                    models.Status(d.Status),
		PaymentStatus:             models.PaymentStatus(d.PaymentStatus),
		Freight:                   d.Freight,
		Charges:                   d.Charges,
		StdCharges:                d.StdCharges,
		Remarks:                   d.Remarks,
	}.Normalize()
}
