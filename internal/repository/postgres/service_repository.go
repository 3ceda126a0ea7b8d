package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/slotbook/internal/model"
	"github.com/jwalitptl/slotbook/internal/repository"
)

const serviceColumns = `id, provider_id, name, description, price, duration, category,
	is_active, working_hours, created_at, updated_at`

type serviceRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewServiceRepository(db *sqlx.DB) repository.ServiceRepository {
	return &serviceRepository{db: db, now: time.Now}
}

func (r *serviceRepository) Create(ctx context.Context, svc *model.Service) error {
	if svc.ID == "" {
		svc.ID = model.NewID()
	}
	svc.Touch(r.now())
	query := `
		INSERT INTO services (` + serviceColumns + `)
		VALUES (:id, :provider_id, :name, :description, :price, :duration, :category,
			:is_active, :working_hours, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, svc); err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

func (r *serviceRepository) Get(ctx context.Context, id string) (*model.Service, error) {
	var svc model.Service
	err := r.db.GetContext(ctx, &svc, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

func (r *serviceRepository) GetMany(ctx context.Context, ids []string) (map[string]*model.Service, error) {
	out := make(map[string]*model.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []*model.Service
	err := r.db.SelectContext(ctx, &list, `SELECT `+serviceColumns+` FROM services WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get services: %w", err)
	}
	for _, svc := range list {
		out[svc.ID] = svc
	}
	return out, nil
}

func (r *serviceRepository) Update(ctx context.Context, svc *model.Service) error {
	svc.UpdatedAt = r.now().UTC()
	query := `
		UPDATE services
		SET name = :name, description = :description, price = :price, duration = :duration,
			category = :category, is_active = :is_active, working_hours = :working_hours,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, svc)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	return expectRow(result)
}

func (r *serviceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", err)
	}
	return expectRow(result)
}

func (r *serviceRepository) List(ctx context.Context, filter *model.ServiceFilter) ([]*model.Service, error) {
	if filter == nil {
		filter = &model.ServiceFilter{}
	}
	where, args := serviceWhere(filter)
	query := `SELECT ` + serviceColumns + ` FROM services` + where + ` ORDER BY ` + serviceOrder(filter.SortBy)

	list := make([]*model.Service, 0)
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return list, nil
}

func (r *serviceRepository) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	query := `
		SELECT category, COUNT(*) AS count
		FROM services
		WHERE is_active AND category <> ''
		GROUP BY category
		ORDER BY category
	`
	out := make([]model.CategoryCount, 0)
	if err := r.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return out, nil
}

func serviceWhere(f *model.ServiceFilter) (string, []interface{}) {
	var w where
	if f.ProviderID != "" {
		w.add("provider_id = ?", f.ProviderID)
	}
	if f.Category != "" {
		w.add("LOWER(category) = LOWER(?)", f.Category)
	}
	if f.Active != nil {
		w.add("is_active = ?", *f.Active)
	}
	if f.MinPrice != nil {
		w.add("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		w.add("price <= ?", *f.MaxPrice)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		w.add("(name ILIKE ? OR description ILIKE ? OR category ILIKE ?)", like, like, like)
	}
	return w.build()
}

func serviceOrder(sortBy string) string {
	switch sortBy {
	case model.SortPriceAsc:
		return "price ASC, created_at DESC"
	case model.SortPriceDesc:
		return "price DESC, created_at DESC"
	case model.SortName:
		return "name ASC"
	default:
		return "created_at DESC"
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
