package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"campusloans/internal/migrations/mongo/validators"
	"campusloans/pkg/logger"
)

const (
	LoansCollection     = "Loans"
	SnapshotsCollection = "Device_snapshots"
	DevicesCollection   = "Devices"
)

var (
	LoansIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reservation_id", Value: 1}},
			Options: options.Index().SetName("reservation_id_unique").SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{
			{Key: "device_id", Value: 1},
			{Key: "status", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "_id", Value: 1},
		}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "due_date", Value: 1}}},
	}

	SnapshotsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "available_count", Value: 1}}},
	}

	DevicesIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "brand", Value: 1}}},
	}
)

type collectionDef struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

var collections = []collectionDef{
	{LoansCollection, LoansIndexes, validators.LoanValidator},
	{SnapshotsCollection, SnapshotsIndexes, validators.SnapshotValidator},
	{DevicesCollection, DevicesIndexes, validators.DeviceValidator},
}

// RunMigration creates the collections with their validators and indexes. It
// is safe to run repeatedly.
func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	for _, def := range collections {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
