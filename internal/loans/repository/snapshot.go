package repository

import (
	"context"
	"errors"
	"fmt"

	loanserrors "campusloans/internal/loans/errors"
	"campusloans/pkg/config"
	"campusloans/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SnapshotRepository interface {
	Get(ctx context.Context, deviceID string) (*model.DeviceSnapshot, error)
	// Upsert replaces the snapshot unconditionally and returns the previous
	// one, or nil if the device was unknown.
	Upsert(ctx context.Context, snap *model.DeviceSnapshot) (*model.DeviceSnapshot, error)
	Delete(ctx context.Context, deviceID string) error
	List(ctx context.Context) ([]*model.DeviceSnapshot, error)
}

type mongoSnapshotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSnapshotRepository(cfg *config.Config) SnapshotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSnapshotRepository{
		cfg:        cfg,
		collection: db.Collection(SnapshotsCollection),
	}
}

func (r *mongoSnapshotRepository) Get(ctx context.Context, deviceID string) (*model.DeviceSnapshot, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var snap model.DeviceSnapshot
	if err := r.collection.FindOne(ctx, bson.M{"_id": deviceID}).Decode(&snap); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, loanserrors.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to find device snapshot: %w", err)
	}
	return &snap, nil
}

func (r *mongoSnapshotRepository) Upsert(ctx context.Context, snap *model.DeviceSnapshot) (*model.DeviceSnapshot, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var previous model.DeviceSnapshot
	err := r.collection.FindOneAndReplace(ctx, bson.M{"_id": snap.ID}, snap, opts).Decode(&previous)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to upsert device snapshot: %w", err)
	}
	return &previous, nil
}

func (r *mongoSnapshotRepository) Delete(ctx context.Context, deviceID string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": deviceID})
	if err != nil {
		return fmt.Errorf("failed to delete device snapshot: %w", err)
	}
	if result.DeletedCount == 0 {
		return loanserrors.ErrSnapshotNotFound
	}
	return nil
}

func (r *mongoSnapshotRepository) List(ctx context.Context) ([]*model.DeviceSnapshot, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list device snapshots: %w", err)
	}
	defer cursor.Close(ctx)

	snaps := []*model.DeviceSnapshot{}
	if err := cursor.All(ctx, &snaps); err != nil {
		return nil, fmt.Errorf("failed to decode device snapshots: %w", err)
	}
	return snaps, nil
}
