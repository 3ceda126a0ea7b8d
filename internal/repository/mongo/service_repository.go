package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
)

type ServiceRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewServiceRepository(db *mongo.Database) *ServiceRepository {
	return newServiceRepository(db.Collection(servicesCollection))
}

func newServiceRepository(col *mongo.Collection) *ServiceRepository {
	return &ServiceRepository{col: col, now: time.Now}
}

func (r *ServiceRepository) Create(ctx context.Context, svc *model.Service) error {
	if svc.ID == "" {
		svc.ID = model.NewID()
	}
	svc.Touch(r.now())
	if _, err := r.col.InsertOne(ctx, svc); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *ServiceRepository) Get(ctx context.Context, id string) (*model.Service, error) {
	var svc model.Service
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&svc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

func (r *ServiceRepository) GetMany(ctx context.Context, ids []string) (map[string]*model.Service, error) {
	out := make(map[string]*model.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get services: %w", err)
	}
	var list []*model.Service
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	for _, svc := range list {
		out[svc.ID] = svc
	}
	return out, nil
}

func (r *ServiceRepository) Update(ctx context.Context, svc *model.Service) error {
	svc.UpdatedAt = r.now().UTC()
	update := bson.M{"$set": bson.M{
		"name":         svc.Name,
		"description":  svc.Description,
		"price":        svc.Price,
		"duration":     svc.Duration,
		"category":     svc.Category,
		"isActive":     svc.IsActive,
		"workingHours": svc.WorkingHours,
		"updatedAt":    svc.UpdatedAt,
	}}
	res, err := r.col.UpdateByID(ctx, svc.ID, update)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ServiceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ServiceRepository) List(ctx context.Context, filter *model.ServiceFilter) ([]*model.Service, error) {
	if filter == nil {
		filter = &model.ServiceFilter{}
	}
	opts := options.Find().SetSort(serviceSort(filter.SortBy))
	cur, err := r.col.Find(ctx, serviceQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	list := make([]*model.Service, 0)
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to decode services: %w", err)
	}
	return list, nil
}

func (r *ServiceRepository) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true, "category": bson.M{"$ne": ""}}}},
		{{Key: "$group", Value: bson.M{"_id": "$category", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	out := make([]model.CategoryCount, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return out, nil
}

func serviceQuery(f *model.ServiceFilter) bson.M {
	q := bson.M{}
	if f.ProviderID != "" {
		q["providerId"] = f.ProviderID
	}
	if f.Category != "" {
		q["category"] = bson.M{"$regex": "^" + regexp.QuoteMeta(f.Category) + "$", "$options": "i"}
	}
	if f.Active != nil {
		q["isActive"] = *f.Active
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		q["price"] = price
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		re := bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
		q["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"description": re},
			bson.M{"category": re},
		}
	}
	return q
}

func serviceSort(sortBy string) bson.D {
	switch sortBy {
	case model.SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}}
	case model.SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}}
	case model.SortName:
		return bson.D{{Key: "name", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}
