package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound indicates the requested entity was not found.
var ErrNotFound = errors.New("entity not found")

// EntityMapper maps between domain and database model types.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) D
	ToModel(domain D) E
}

// Scope customizes every session a Repository opens, for example to join
// an association that query conditions refer to.
type Scope func(db *gorm.DB) *gorm.DB

// Repository provides generic read operations over one model type.
type Repository[D any, E any] struct {
	db     Database
	mapper EntityMapper[D, E]
	label  string
	scope  Scope
}

// NewRepository creates a Repository.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{
		db:     db,
		mapper: mapper,
		label:  label,
	}
}

// NewRepositoryWithScope creates a Repository whose sessions pass through
// scope before options are applied.
func NewRepositoryWithScope[D any, E any](db Database, mapper EntityMapper[D, E], label string, scope Scope) Repository[D, E] {
	r := NewRepository(db, mapper, label)
	r.scope = scope
	return r
}

// session returns a model-bound session with the scope applied before
// query filters.
func (r Repository[D, E]) session(ctx context.Context) *gorm.DB {
	db := r.db.Session(ctx).Model(new(E))
	if r.scope != nil {
		db = r.scope(db)
	}
	return db
}

// Find retrieves entities matching q.
func (r Repository[D, E]) Find(ctx context.Context, q Query) ([]D, error) {
	var entities []E
	if err := q.Apply(r.session(ctx)).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}

	domains := make([]D, len(entities))
	for i, entity := range entities {
		domains[i] = r.mapper.ToDomain(entity)
	}
	return domains, nil
}

// FindOne retrieves the first entity matching q.
func (r Repository[D, E]) FindOne(ctx context.Context, q Query) (D, error) {
	var entity E
	var zero D
	err := q.Apply(r.session(ctx)).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, fmt.Errorf("%w: %s", ErrNotFound, r.label)
		}
		return zero, fmt.Errorf("find one %s: %w", r.label, err)
	}
	return r.mapper.ToDomain(entity), nil
}

// Exists checks if any entity matches q.
func (r Repository[D, E]) Exists(ctx context.Context, q Query) (bool, error) {
	count, err := r.Count(ctx, q)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count returns the number of entities matching q's filters. Ordering and
// pagination are ignored.
func (r Repository[D, E]) Count(ctx context.Context, q Query) (int64, error) {
	var count int64
	if err := q.ApplyFilters(r.session(ctx)).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return count, nil
}

// DB returns the underlying database handle.
func (r Repository[D, E]) DB() Database {
	return r.db
}

// Mapper returns the entity mapper.
func (r Repository[D, E]) Mapper() EntityMapper[D, E] {
	return r.mapper
}
