// Package audience resolves rule trees into the ordered set of customers
// they select.
package audience

import (
	"context"

	"github.com/nimasrn/crm-campaigns/internal/model"
	"github.com/nimasrn/crm-campaigns/internal/rules"
)

const DefaultBatchSize = 500

// CustomerSource walks the customer base in a stable order.
type CustomerSource interface {
	ScanBatches(ctx context.Context, size int, fn func(batch []*model.Customer) error) error
}

type Resolver struct {
	source    CustomerSource
	batchSize int
}

func NewResolver(source CustomerSource, batchSize int) *Resolver {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Resolver{source: source, batchSize: batchSize}
}

// Resolve returns every matching customer in source order.
func (r *Resolver) Resolve(ctx context.Context, tree rules.Tree) ([]*model.Customer, error) {
	var matched []*model.Customer
	err := r.scan(ctx, tree, func(c *model.Customer) {
		matched = append(matched, c)
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

// Count runs the same scan as Resolve without keeping the customers.
func (r *Resolver) Count(ctx context.Context, tree rules.Tree) (int, error) {
	n := 0
	err := r.scan(ctx, tree, func(*model.Customer) {
		n++
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Resolver) scan(ctx context.Context, tree rules.Tree, emit func(*model.Customer)) error {
	pred, err := rules.Compile(tree)
	if err != nil {
		return err
	}
	return r.source.ScanBatches(ctx, r.batchSize, func(batch []*model.Customer) error {
		for _, c := range batch {
			if pred.Match(c) {
				emit(c)
			}
		}
		return ctx.Err()
	})
}
