package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/printflow/portal/supabase/client"
)

const table = "payments"

// ErrNotFound is returned when a payment does not exist for the customer.
var ErrNotFound = errors.New("payment not found")

// Repository reads payments scoped to one customer.
type Repository interface {
	// List returns the customer's payments, newest first. limit <= 0 means all.
	List(ctx context.Context, customerID string, limit int) ([]Payment, error)
	// Get returns one of the customer's payments or ErrNotFound.
	Get(ctx context.Context, customerID, id string) (*Payment, error)
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

func (r *SupabaseRepository) List(ctx context.Context, customerID string, limit int) ([]Payment, error) {
	var rows []Payment
	err := r.client.From(table).Select("*").
		Eq("customer_id", customerID).
		Order("created_at", false).
		Limit(limit).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return rows, nil
}

func (r *SupabaseRepository) Get(ctx context.Context, customerID, id string) (*Payment, error) {
	// A malformed uuid would be a 400 from PostgREST; it cannot match a row.
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var row Payment
	err := r.client.From(table).Select("*").
		Eq("id", id).
		Eq("customer_id", customerID).
		Single().
		ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return &row, nil
}
