package kernel

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// PageRequest — запрос страницы; Index приходит из строки запроса как есть.
type PageRequest struct {
	Size  int
	Index string
}

// Page — страница результатов.
type Page struct {
	Records  []*Record `json:"records"`
	Number   int       `json:"number"`
	NumPages int       `json:"num_pages"`
	Total    int64     `json:"total"`
	HasNext  bool      `json:"has_next"`
	HasPrev  bool      `json:"has_previous"`
}

// ListOptions — фильтры, порядок (nil — порядок типа) и страница (nil — всё).
type ListOptions struct {
	Filters []Filter
	Order   []Order
	Page    *PageRequest
}

// Get читает запись по id. Права не проверяются.
func (k *Kernel) Get(ctx context.Context, typeName string, id int64) (*Record, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	return k.store.Get(ctx, rt, id)
}

// GetBy ищет первую запись с field = value (например, коммуну по слагу).
func (k *Kernel) GetBy(ctx context.Context, typeName, field string, value any) (*Record, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	if !rt.Column(field) {
		return nil, fmt.Errorf("%s: unknown field %s", rt.Name, field)
	}
	recs, err := k.store.Find(ctx, rt, Query{
		Filters: []Filter{{Field: field, Op: "=", Value: value}},
		Order:   rt.Ordering,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Singleton возвращает единственную запись синглтон-типа или ErrNotFound.
func (k *Kernel) Singleton(ctx context.Context, typeName string) (*Record, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	if rt.Cardinality != Singleton {
		return nil, fmt.Errorf("%s is not a singleton", rt.Name)
	}
	recs, err := k.store.Find(ctx, rt, Query{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Count — число записей, удовлетворяющих фильтрам.
func (k *Kernel) Count(ctx context.Context, typeName string, filters []Filter) (int64, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return 0, err
	}
	if err := k.checkFilters(rt, filters); err != nil {
		return 0, err
	}
	return k.store.Count(ctx, rt, filters)
}

// List возвращает записи в стабильном порядке. Нецелый номер страницы
// даёт первую страницу, номер вне диапазона — последнюю.
func (k *Kernel) List(ctx context.Context, typeName string, opts ListOptions) (*Page, error) {
	rt, err := k.Type(typeName)
	if err != nil {
		return nil, err
	}
	if err := k.checkFilters(rt, opts.Filters); err != nil {
		return nil, err
	}
	order := opts.Order
	if order == nil {
		order = rt.Ordering
	}
	for _, o := range order {
		if !rt.Column(o.Field) {
			return nil, fmt.Errorf("%s: unknown order field %s", rt.Name, o.Field)
		}
	}

	if opts.Page == nil || opts.Page.Size <= 0 {
		recs, err := k.store.Find(ctx, rt, Query{Filters: opts.Filters, Order: order})
		if err != nil {
			return nil, err
		}
		return &Page{Records: recs, Number: 1, NumPages: 1, Total: int64(len(recs))}, nil
	}

	total, err := k.store.Count(ctx, rt, opts.Filters)
	if err != nil {
		return nil, err
	}
	size := opts.Page.Size
	numPages := int((total + int64(size) - 1) / int64(size))
	if numPages < 1 {
		numPages = 1
	}
	number := ClampPage(opts.Page.Index, numPages)

	recs, err := k.store.Find(ctx, rt, Query{
		Filters: opts.Filters,
		Order:   order,
		Limit:   size,
		Offset:  (number - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	return &Page{
		Records:  recs,
		Number:   number,
		NumPages: numPages,
		Total:    total,
		HasNext:  number < numPages,
		HasPrev:  number > 1,
	}, nil
}

// ClampPage переводит сырой номер страницы в диапазон [1, numPages].
func ClampPage(index string, numPages int) int {
	n, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return 1
	}
	if n < 1 || n > numPages {
		return numPages
	}
	return n
}

func (k *Kernel) checkFilters(rt *ResourceType, filters []Filter) error {
	for _, f := range filters {
		if !rt.Column(f.Field) {
			return fmt.Errorf("%s: unknown filter field %s", rt.Name, f.Field)
		}
		if !ValidOp(f.Op) {
			return fmt.Errorf("%s: invalid filter operator %q", rt.Name, f.Op)
		}
	}
	return nil
}

// ReferencedPaths — все пути вложений, на которые ссылаются записи.
func (k *Kernel) ReferencedPaths(ctx context.Context) (map[string]struct{}, error) {
	refs := map[string]struct{}{}
	for _, rt := range k.Types() {
		if len(rt.Slots) == 0 {
			continue
		}
		recs, err := k.store.Find(ctx, rt, Query{})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", rt.Name, err)
		}
		for _, r := range recs {
			for _, path := range r.Attachments {
				if path != "" {
					refs[path] = struct{}{}
				}
			}
		}
	}
	return refs, nil
}
