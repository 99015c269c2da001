package support

import (
	"context"
	"errors"
	"fmt"

	"github.com/printflow/portal/supabase/client"
)

const table = "support_tickets"

// Repository stores tickets scoped to one customer.
type Repository interface {
	// List returns the customer's tickets, newest first.
	List(ctx context.Context, customerID string) ([]Ticket, error)
	// Create inserts t and returns the stored row.
	Create(ctx context.Context, t *Ticket) (*Ticket, error)
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

func (r *SupabaseRepository) List(ctx context.Context, customerID string) ([]Ticket, error) {
	var rows []Ticket
	err := r.client.From(table).Select("*").
		Eq("customer_id", customerID).
		Order("created_at", false).
		ExecuteInto(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return rows, nil
}

func (r *SupabaseRepository) Create(ctx context.Context, t *Ticket) (*Ticket, error) {
	resp, err := r.client.From(table).ExecuteInsert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	var rows []Ticket
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("create ticket: no row returned")
	}
	return &rows[0], nil
}
