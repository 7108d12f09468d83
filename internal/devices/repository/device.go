package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	deviceserrors "campusloans/internal/devices/errors"
	"campusloans/pkg/config"
	"campusloans/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Devices"
)

type DeviceRepository interface {
	Create(ctx context.Context, d *model.Device) error
	FindByID(ctx context.Context, id string) (*model.Device, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Device, error)
	Update(ctx context.Context, id string, d *model.Device) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type mongoDeviceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoDeviceRepository(cfg *config.Config) DeviceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDeviceRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", deviceserrors.ErrInvalidID, id)
	}
	return oid, nil
}

func (r *mongoDeviceRepository) Create(ctx context.Context, d *model.Device) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	d.ID = ""
	d.CreatedAt = now
	d.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		d.ID = oid.Hex()
	}
	return nil
}

func (r *mongoDeviceRepository) FindByID(ctx context.Context, id string) (*model.Device, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var d model.Device
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", deviceserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}
	return &d, nil
}

// FindAll pages in insertion order so a snapshot feed walked by offset sees
// every device once.
func (r *mongoDeviceRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Device, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(offset).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer cursor.Close(ctx)

	var devices []*model.Device
	if err := cursor.All(ctx, &devices); err != nil {
		return nil, fmt.Errorf("failed to decode devices: %w", err)
	}
	return devices, nil
}

func (r *mongoDeviceRepository) Update(ctx context.Context, id string, d *model.Device) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	d.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"brand":            d.Brand,
			"model":            d.Model,
			"category":         d.Category,
			"description":      d.Description,
			"available_count":  d.AvailableCount,
			"max_device_count": d.MaxDeviceCount,
			"image_url":        d.ImageURL,
			"file_url":         d.FileURL,
			"updated_at":       d.UpdatedAt,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", deviceserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoDeviceRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	oid, err := objectID(id)
	if err != nil {
		return err
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", deviceserrors.ErrNotFound, id)
	}
	return nil
}

func (r *mongoDeviceRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}
