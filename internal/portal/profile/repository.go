package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/printflow/portal/supabase/client"
)

const table = "customers"

// ErrNotFound is returned when no profile row exists for an identity.
var ErrNotFound = errors.New("profile not found")

// Repository persists profiles. Calls are authorized by the access token in
// ctx (see client.WithAccessToken).
type Repository interface {
	// GetByUserID returns the profile owned by userID or ErrNotFound.
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	// InsertIfAbsent inserts p unless a row with the same user_id exists.
	// It returns the inserted row and true, or nil and false on conflict.
	InsertIfAbsent(ctx context.Context, p *Profile) (*Profile, bool, error)
	// Update applies patch to the row with the given id and stamps updated_at.
	Update(ctx context.Context, id string, patch Patch, now time.Time) error
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

func (r *SupabaseRepository) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	var row Profile
	err := r.client.From(table).Select("*").Eq("user_id", userID).Single().ExecuteInto(ctx, &row)
	if errors.Is(err, client.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &row, nil
}

func (r *SupabaseRepository) InsertIfAbsent(ctx context.Context, p *Profile) (*Profile, bool, error) {
	resp, err := r.client.From(table).OnConflict("user_id").IgnoreDuplicates().ExecuteInsert(ctx, newRow(p))
	if err != nil {
		return nil, false, fmt.Errorf("insert profile: %w", err)
	}

	var rows []Profile
	if err := resp.JSON(&rows); err != nil {
		return nil, false, fmt.Errorf("insert profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return &rows[0], true, nil
}

func (r *SupabaseRepository) Update(ctx context.Context, id string, patch Patch, now time.Time) error {
	body, err := patchBody(patch, now)
	if err != nil {
		return err
	}
	if _, err := r.client.From(table).Eq("id", id).ExecuteUpdate(ctx, body); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// insertRow leaves created_at and updated_at to column defaults. phone is
// sent as "" rather than null because the column is NOT NULL.
type insertRow struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	CompanyName     *string `json:"company_name"`
	TotalOrders     int     `json:"total_orders"`
	TotalSpent      float64 `json:"total_spent"`
	JoinedDate      string  `json:"joined_date,omitempty"`
	LastInteraction string  `json:"last_interaction,omitempty"`
}

func newRow(p *Profile) insertRow {
	return insertRow{
		ID:              p.ID,
		UserID:          p.UserID,
		Name:            p.Name,
		Email:           p.Email,
		Phone:           p.Phone,
		CompanyName:     nullable(p.CompanyName),
		TotalOrders:     p.TotalOrders,
		TotalSpent:      p.TotalSpent,
		JoinedDate:      p.JoinedDate,
		LastInteraction: p.LastInteraction,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func patchBody(patch Patch, now time.Time) (map[string]interface{}, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("encode profile patch: %w", err)
	}
	body := map[string]interface{}{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("encode profile patch: %w", err)
	}
	body["updated_at"] = now.UTC().Format(time.RFC3339Nano)
	return body, nil
}
