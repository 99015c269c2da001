package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/printflow/portal/supabase/client"
)

const table = "orders"

// ErrNotFound is returned when an order does not exist for the customer.
var ErrNotFound = errors.New("order not found")

// Repository reads orders scoped to one customer.
type Repository interface {
	// List returns the customer's orders, newest first. limit <= 0 means all.
	List(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Get returns one of the customer's orders or ErrNotFound.
	Get(ctx context.Context, customerID string, id int64) (*Order, error)
}

// SupabaseRepository implements Repository over PostgREST.
type SupabaseRepository struct {
	client *client.Client
}

var _ Repository = (*SupabaseRepository)(nil)

// NewSupabaseRepository creates a repository.
func NewSupabaseRepository(c *client.Client) *SupabaseRepository {
	return &SupabaseRepository{client: c}
}

func (r *SupabaseRepository) List(ctx context.Context, customerID string, limit int) ([]Order, error) {
	var rows []Order
	err := r.client.From(table).Select("*").
		Eq("customer_id", customerID).
		Eq("is_deleted", false).
		Order("created_at", false).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return rows, nil
}

func (r *SupabaseRepository) Get(ctx context.Context, customerID string, id int64) (*Order, error) {
	var row Order
	err := r.client.From(table).Select("*").
		Eq("id", id).
		Eq("customer_id", customerID).
		Eq("is_deleted", false).
		Single().
		ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &row, nil
}
