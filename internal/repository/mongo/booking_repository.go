package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
)

type BookingRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return newBookingRepository(db.Collection(bookingsCollection))
}

func newBookingRepository(col *mongo.Collection) *BookingRepository {
	return &BookingRepository{col: col, now: time.Now}
}

type bookingDocument struct {
	model.Booking `bson:",inline"`
	SlotKey       string `bson:"slotKey,omitempty"`
}

func slotKey(serviceID string, start time.Time) string {
	return serviceID + "|" + start.UTC().Format(time.RFC3339)
}

func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = model.NewID()
	}
	b.Touch(r.now())
	doc := bookingDocument{Booking: *b}
	doc.Service = nil
	if b.Status != model.StatusCancelled {
		doc.SlotKey = slotKey(b.ServiceID, b.StartTime)
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (*model.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return doc.toModel(), nil
}

func (r *BookingRepository) FindOverlapping(ctx context.Context, serviceID string, start, end time.Time) ([]*model.Booking, error) {
	q := bson.M{
		"serviceId": serviceID,
		"status":    bson.M{"$ne": model.StatusCancelled},
		"startTime": bson.M{"$lt": end.UTC()},
		"endTime":   bson.M{"$gt": start.UTC()},
	}
	return r.find(ctx, q, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
}

func (r *BookingRepository) List(ctx context.Context, filter *model.BookingFilter) ([]*model.Booking, error) {
	if filter == nil {
		filter = &model.BookingFilter{}
	}
	opts := options.Find()
	if filter.NewestFirst {
		opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
	} else {
		opts.SetSort(bson.D{{Key: "startTime", Value: -1}})
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, bookingQuery(filter), opts)
}

func (r *BookingRepository) Count(ctx context.Context, filter *model.BookingFilter) (int, error) {
	if filter == nil {
		filter = &model.BookingFilter{}
	}
	n, err := r.col.CountDocuments(ctx, bookingQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return int(n), nil
}

func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status model.BookingStatus, notes *string) (*model.Booking, error) {
	set := bson.M{"status": status, "updatedAt": r.now().UTC()}
	if notes != nil {
		set["notes"] = *notes
	}
	update := bson.M{"$set": set}
	if status == model.StatusCancelled {
		update["$unset"] = bson.M{"slotKey": ""}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc bookingDocument
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}
	return doc.toModel(), nil
}

func (r *BookingRepository) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	cur, err := r.col.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	var docs []bookingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", err)
	}
	out := make([]*model.Booking, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel())
	}
	return out, nil
}

func (d *bookingDocument) toModel() *model.Booking {
	b := d.Booking
	b.Date = b.Date.UTC()
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b
}

func bookingQuery(f *model.BookingFilter) bson.M {
	q := bson.M{}
	if f.UserID != "" {
		q["userId"] = f.UserID
	}
	if f.ProviderID != "" {
		q["providerId"] = f.ProviderID
	}
	if f.ServiceID != "" {
		q["serviceId"] = f.ServiceID
	}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	start := bson.M{}
	if !f.From.IsZero() {
		start["$gte"] = f.From.UTC()
	}
	if !f.To.IsZero() {
		start["$lt"] = f.To.UTC()
	}
	if len(start) > 0 {
		q["startTime"] = start
	}
	return q
}
