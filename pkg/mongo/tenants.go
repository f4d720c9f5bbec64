package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection is the part of *mongo.Collection the registry uses.
type Collection interface {
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter any, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
}

// tenantDoc is one registry entry; the tenant id is the document _id.
type tenantDoc struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at,omitempty"`
}

// TenantRegistry lists tenants from a collection in creation order.
// It satisfies tenancy.Provider and queries on every call.
type TenantRegistry struct {
	coll Collection
	now  func() time.Time
}

func NewTenantRegistry(coll Collection) *TenantRegistry {
	return &TenantRegistry{coll: coll, now: time.Now}
}

// Tenants implements tenancy.Provider.
func (r *TenantRegistry) Tenants(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}

	// All closes the cursor.
	var docs []tenantDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tenants: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

// Add registers id; adding it again keeps the original creation time.
func (r *TenantRegistry) Add(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyTenantID
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: r.now().UTC()}}}},
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("add tenant %q: %w", id, err)
	}
	return nil
}

// Remove unregisters id. Removing an unknown id is not an error.
func (r *TenantRegistry) Remove(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return fmt.Errorf("remove tenant %q: %w", id, err)
	}
	return nil
}
