package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	loanserrors "campusloans/internal/loans/errors"
	"campusloans/pkg/config"
	"campusloans/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type LoanRepository interface {
	Create(ctx context.Context, loan *model.LoanRecord) error
	FindByID(ctx context.Context, id string) (*model.LoanRecord, error)
	FindByReservationID(ctx context.Context, reservationID string) (*model.LoanRecord, error)
	// FindByDeviceAndStatus returns loans oldest first, ties broken by id.
	FindByDeviceAndStatus(ctx context.Context, deviceID string, status model.LoanStatus) ([]*model.LoanRecord, error)
	CountByDeviceAndStatus(ctx context.Context, deviceID string, status model.LoanStatus) (int64, error)
	FindActiveDueBefore(ctx context.Context, t time.Time) ([]*model.LoanRecord, error)
	List(ctx context.Context, filter model.LoanFilter) ([]*model.LoanRecord, error)
	Count(ctx context.Context, filter model.LoanFilter) (int64, error)
	// Update writes loan if its Version still matches the stored one and
	// bumps Version on success.
	Update(ctx context.Context, loan *model.LoanRecord) error
}

type mongoLoanRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoLoanRepository(cfg *config.Config) LoanRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoLoanRepository{
		cfg:        cfg,
		collection: db.Collection(LoansCollection),
	}
}

func (r *mongoLoanRepository) Create(ctx context.Context, loan *model.LoanRecord) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	loan.Version = 1
	if _, err := r.collection.InsertOne(ctx, loan); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return loanserrors.ErrDuplicateReservation
		}
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func (r *mongoLoanRepository) FindByID(ctx context.Context, id string) (*model.LoanRecord, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoLoanRepository) FindByReservationID(ctx context.Context, reservationID string) (*model.LoanRecord, error) {
	if reservationID == "" {
		return nil, loanserrors.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"reservation_id": reservationID})
}

func (r *mongoLoanRepository) findOne(ctx context.Context, filter bson.M) (*model.LoanRecord, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var loan model.LoanRecord
	if err := r.collection.FindOne(ctx, filter).Decode(&loan); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, loanserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find loan: %w", err)
	}
	return &loan, nil
}

func (r *mongoLoanRepository) FindByDeviceAndStatus(ctx context.Context, deviceID string, status model.LoanStatus) ([]*model.LoanRecord, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	return r.find(ctx, bson.M{"device_id": deviceID, "status": status}, opts)
}

func (r *mongoLoanRepository) CountByDeviceAndStatus(ctx context.Context, deviceID string, status model.LoanStatus) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"device_id": deviceID, "status": status})
	if err != nil {
		return 0, fmt.Errorf("failed to count loans: %w", err)
	}
	return count, nil
}

func (r *mongoLoanRepository) FindActiveDueBefore(ctx context.Context, t time.Time) ([]*model.LoanRecord, error) {
	filter := bson.M{
		"status":   model.LoanActive,
		"due_date": bson.M{"$lt": t},
	}
	opts := options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *mongoLoanRepository) List(ctx context.Context, filter model.LoanFilter) ([]*model.LoanRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(filter.Offset)
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, buildListFilter(filter), opts)
}

func (r *mongoLoanRepository) Count(ctx context.Context, filter model.LoanFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildListFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count loans: %w", err)
	}
	return count, nil
}

func buildListFilter(filter model.LoanFilter) bson.M {
	query := bson.M{}
	if filter.LoanID != "" {
		query["_id"] = filter.LoanID
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}

func (r *mongoLoanRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.LoanRecord, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find loans: %w", err)
	}
	defer cursor.Close(ctx)

	loans := []*model.LoanRecord{}
	if err := cursor.All(ctx, &loans); err != nil {
		return nil, fmt.Errorf("failed to decode loans: %w", err)
	}
	return loans, nil
}

func (r *mongoLoanRepository) Update(ctx context.Context, loan *model.LoanRecord) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{
		"status":      loan.Status,
		"start_date":  loan.StartDate,
		"due_date":    loan.DueDate,
		"updated_at":  loan.UpdatedAt,
		"was_overdue": loan.WasOverdue,
	}
	if loan.ReservationID != "" {
		set["reservation_id"] = loan.ReservationID
	}
	if loan.ActivatedAt != nil {
		set["activated_at"] = loan.ActivatedAt
	}
	if loan.ReturnedAt != nil {
		set["returned_at"] = loan.ReturnedAt
	}
	if loan.CancelledAt != nil {
		set["cancelled_at"] = loan.CancelledAt
	}
	if loan.CancelReason != "" {
		set["cancel_reason"] = loan.CancelReason
	}
	if loan.Notes != "" {
		set["notes"] = loan.Notes
	}

	filter := bson.M{"_id": loan.ID, "version": loan.Version}
	update := bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return loanserrors.ErrDuplicateReservation
		}
		return fmt.Errorf("failed to update loan: %w", err)
	}

	if result.MatchedCount == 0 {
		exists, err := r.collection.CountDocuments(ctx, bson.M{"_id": loan.ID}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("failed to check loan existence: %w", err)
		}
		if exists == 0 {
			return loanserrors.ErrNotFound
		}
		return loanserrors.ErrVersionConflict
	}

	loan.Version++
	return nil
}
