package database

import (
	"fmt"

	"gorm.io/gorm"
)

// FilterOperator represents SQL comparison operators.
type FilterOperator int

// FilterOperator values.
const (
	OpEqual FilterOperator = iota
	OpIn
)

// String returns the SQL representation of the operator.
func (o FilterOperator) String() string {
	switch o {
	case OpIn:
		return "IN"
	default:
		return "="
	}
}

// Filter represents a single query filter condition.
type Filter struct {
	field    string
	operator FilterOperator
	value    any
}

// NewFilter creates a new Filter.
func NewFilter(field string, operator FilterOperator, value any) Filter {
	return Filter{field: field, operator: operator, value: value}
}

// Field returns the column the filter applies to.
func (f Filter) Field() string { return f.field }

// Operator returns the comparison operator.
func (f Filter) Operator() FilterOperator { return f.operator }

// Value returns the compared value.
func (f Filter) Value() any { return f.value }

// SortDirection represents the sort order.
type SortDirection int

// SortDirection values.
const (
	SortAsc SortDirection = iota
	SortDesc
)

// String returns the SQL keyword for the direction.
func (s SortDirection) String() string {
	if s == SortDesc {
		return "DESC"
	}
	return "ASC"
}

// OrderBy is one sort specification.
type OrderBy struct {
	field     string
	direction SortDirection
}

// Field returns the sorted column.
func (o OrderBy) Field() string { return o.field }

// Direction returns the sort direction.
func (o OrderBy) Direction() SortDirection { return o.direction }

// Query holds filters, ordering and pagination. Builder methods return a
// modified copy.
type Query struct {
	filters []Filter
	orderBy []OrderBy
	limit   int
	offset  int
}

// NewQuery creates an empty Query.
func NewQuery() Query {
	return Query{}
}

// Where adds a filter.
func (q Query) Where(field string, operator FilterOperator, value any) Query {
	q.filters = append(append([]Filter(nil), q.filters...), NewFilter(field, operator, value))
	return q
}

// Equal adds a field = value filter.
func (q Query) Equal(field string, value any) Query {
	return q.Where(field, OpEqual, value)
}

// In adds a field IN (values) filter.
func (q Query) In(field string, values any) Query {
	return q.Where(field, OpIn, values)
}

// Order adds a sort specification.
func (q Query) Order(field string, direction SortDirection) Query {
	q.orderBy = append(append([]OrderBy(nil), q.orderBy...), OrderBy{field: field, direction: direction})
	return q
}

// OrderAsc adds ascending ordering on field.
func (q Query) OrderAsc(field string) Query {
	return q.Order(field, SortAsc)
}

// OrderDesc adds descending ordering on field.
func (q Query) OrderDesc(field string) Query {
	return q.Order(field, SortDesc)
}

// Limit caps the number of results. Zero means no limit.
func (q Query) Limit(limit int) Query {
	q.limit = limit
	return q
}

// Offset skips the first offset results.
func (q Query) Offset(offset int) Query {
	q.offset = offset
	return q
}

// Filters returns a copy of the filters.
func (q Query) Filters() []Filter {
	out := make([]Filter, len(q.filters))
	copy(out, q.filters)
	return out
}

// Orders returns a copy of the sort specifications.
func (q Query) Orders() []OrderBy {
	out := make([]OrderBy, len(q.orderBy))
	copy(out, q.orderBy)
	return out
}

// LimitValue returns the limit.
func (q Query) LimitValue() int { return q.limit }

// OffsetValue returns the offset.
func (q Query) OffsetValue() int { return q.offset }

// Apply applies the whole query to a GORM session.
func (q Query) Apply(db *gorm.DB) *gorm.DB {
	result := q.ApplyFilters(db)

	for _, order := range q.orderBy {
		result = result.Order(fmt.Sprintf("%s %s", order.field, order.direction))
	}
	if q.limit > 0 {
		result = result.Limit(q.limit)
	}
	if q.offset > 0 {
		result = result.Offset(q.offset)
	}
	return result
}

// ApplyFilters applies only the filters, for COUNT queries.
func (q Query) ApplyFilters(db *gorm.DB) *gorm.DB {
	for _, filter := range q.filters {
		db = applyFilter(db, filter)
	}
	return db
}

func applyFilter(db *gorm.DB, filter Filter) *gorm.DB {
	switch filter.operator {
	case OpIn:
		return db.Where(fmt.Sprintf("%s IN ?", filter.field), filter.value)
	default:
		return db.Where(fmt.Sprintf("%s = ?", filter.field), filter.value)
	}
}
