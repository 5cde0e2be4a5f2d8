package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Filter is a single equality predicate on a whitelisted column.
type Filter struct {
	Column string
	Value  any
}

// ListOptions drives Table.List. Columns outside the table's whitelist are
// rejected rather than interpolated.
type ListOptions struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Table is a generic CRUD repository for simple reference tables keyed by a
// uuid id column.
type Table[T any] struct {
	Base
	columns map[string]struct{}
}

// NewTable builds a table repository. columns lists the names callers may
// filter and order by.
func NewTable[T any](db *gorm.DB, columns ...string) *Table[T] {
	allowed := make(map[string]struct{}, len(columns)+2)
	for _, col := range append(columns, "id", "created_at") {
		allowed[col] = struct{}{}
	}
	return &Table[T]{Base: NewBase(db), columns: allowed}
}

// WithTx returns a copy bound to tx.
func (t *Table[T]) WithTx(tx *gorm.DB) *Table[T] {
	if tx == nil {
		return t
	}
	return &Table[T]{Base: t.Bind(tx), columns: t.columns}
}

func (t *Table[T]) checkColumn(col string) error {
	if _, ok := t.columns[col]; !ok {
		return fmt.Errorf("column %q is not queryable", col)
	}
	return nil
}

func (t *Table[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	query := t.DB(ctx).Model(new(T))
	for _, f := range opts.Filters {
		if err := t.checkColumn(f.Column); err != nil {
			return nil, err
		}
		query = query.Where(fmt.Sprintf("%s = ?", f.Column), f.Value)
	}

	order := strings.TrimSpace(opts.OrderBy)
	if order == "" {
		order = "created_at"
	}
	if err := t.checkColumn(order); err != nil {
		return nil, err
	}
	if opts.Desc {
		order += " DESC"
	}
	query = query.Order(order).Order("id")

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var rows []T
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Get returns gorm.ErrRecordNotFound when no row matches.
func (t *Table[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	var row T
	if err := t.DB(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *Table[T]) Create(ctx context.Context, row *T) error {
	return t.DB(ctx).Create(row).Error
}

// Update applies the column map and returns the fresh row.
func (t *Table[T]) Update(ctx context.Context, id uuid.UUID, updates map[string]any) (*T, error) {
	if len(updates) > 0 {
		res := t.DB(ctx).Model(new(T)).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return t.Get(ctx, id)
}

func (t *Table[T]) Delete(ctx context.Context, id uuid.UUID) error {
	res := t.DB(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
