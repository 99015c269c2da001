// Package seed loads a demo customer with orders, invoices and tickets into
// a Supabase project so the portal has something to show in development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/support"
	"github.com/printflow/portal/supabase/client"
)

// Fixture is the YAML seed file.
type Fixture struct {
	Customer Customer     `yaml:"customer"`
	Orders   []OrderRow   `yaml:"orders"`
	Payments []PaymentRow `yaml:"payments"`
	Tickets  []TicketRow  `yaml:"tickets"`
}

// Customer is the demo login.
type Customer struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	CompanyName string `yaml:"company_name"`
	Phone       string `yaml:"phone"`
}

// OrderRow is an orders table row. Customer columns are filled in by the
// seeder.
type OrderRow struct {
	ID             int64    `yaml:"id" json:"id"`
	CustomerID     string   `yaml:"-" json:"customer_id"`
	CustomerName   string   `yaml:"-" json:"customer_name"`
	CustomerPhone  string   `yaml:"-" json:"customer_phone,omitempty"`
	Date           string   `yaml:"date" json:"date,omitempty"`
	OrderType      string   `yaml:"order_type" json:"order_type"`
	Quantity       int      `yaml:"quantity" json:"quantity"`
	DesignNeeded   bool     `yaml:"design_needed" json:"design_needed"`
	DeliveryDate   string   `yaml:"delivery_date" json:"delivery_date,omitempty"`
	AmountReceived *float64 `yaml:"amount_received" json:"amount_received,omitempty"`
	PaymentMethod  string   `yaml:"payment_method" json:"payment_method,omitempty"`
	Notes          string   `yaml:"notes" json:"notes,omitempty"`
	TotalAmount    float64  `yaml:"total_amount" json:"total_amount"`
	Status         string   `yaml:"status" json:"status"`
	CreatedAt      string   `yaml:"created_at" json:"created_at,omitempty"`
}

// PaymentRow is a payments table row.
type PaymentRow struct {
	ID          string  `yaml:"id" json:"id"`
	CustomerID  string  `yaml:"-" json:"customer_id"`
	OrderID     *int64  `yaml:"order_id" json:"order_id,omitempty"`
	TotalAmount float64 `yaml:"total_amount" json:"total_amount"`
	AmountPaid  float64 `yaml:"amount_paid" json:"amount_paid"`
	DueDate     string  `yaml:"due_date" json:"due_date,omitempty"`
	Status      string  `yaml:"status" json:"status"`
	PaymentDate string  `yaml:"payment_date" json:"payment_date,omitempty"`
	Notes       string  `yaml:"notes" json:"notes,omitempty"`
	CreatedAt   string  `yaml:"created_at" json:"created_at,omitempty"`
}

// TicketRow is a support ticket opened by the demo customer.
type TicketRow struct {
	Subject  string `yaml:"subject"`
	OrderID  *int64 `yaml:"order_id"`
	Priority string `yaml:"priority"`
	Message  string `yaml:"message"`
}

// LoadFixture reads and checks a seed file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the fields the seeder cannot default.
func (f *Fixture) Validate() error {
	if strings.TrimSpace(f.Customer.Email) == "" || f.Customer.Password == "" {
		return errors.New("fixture: customer email and password are required")
	}
	for i, o := range f.Orders {
		if o.ID <= 0 {
			return fmt.Errorf("fixture: order %d needs a positive id", i)
		}
	}
	for i, p := range f.Payments {
		if p.ID == "" {
			return fmt.Errorf("fixture: payment %d needs an id", i)
		}
	}
	return nil
}

// Identity signs the demo customer in, creating the account when needed.
type Identity interface {
	SignInWithPassword(ctx context.Context, email, password string) (*client.AuthResponse, error)
	SignUp(ctx context.Context, params client.SignUpParams) (*client.AuthResponse, error)
}

// Seeder writes a fixture. DB must use a key that bypasses row-level
// security.
type Seeder struct {
	Identity Identity
	DB       *client.Client
	Profiles profile.Repository
	Tickets  support.Repository
	Logger   *logging.Logger
	Now      func() time.Time
}

// Report counts what a run inserted. Rows that already existed are not
// counted.
type Report struct {
	CustomerID     string
	ProfileCreated bool
	Orders         int
	Payments       int
	Tickets        int
}

// Run seeds f. Re-running with the same fixture inserts nothing new.
func (s *Seeder) Run(ctx context.Context, f *Fixture) (*Report, error) {
	if s.Logger == nil {
		s.Logger = logging.NewDiscard()
	}
	if s.Now == nil {
		s.Now = time.Now
	}

	userID, metadata, err := s.user(ctx, f.Customer)
	if err != nil {
		return nil, err
	}
	report := &Report{CustomerID: userID}

	_, created, err := s.Profiles.InsertIfAbsent(ctx, profile.NewDefault(userID, f.Customer.Email, metadata, s.Now()))
	if err != nil {
		return nil, fmt.Errorf("seed profile: %w", err)
	}
	report.ProfileCreated = created

	orderRows := make([]OrderRow, len(f.Orders))
	for i, o := range f.Orders {
		o.CustomerID = userID
		o.CustomerName = f.Customer.Name
		o.CustomerPhone = f.Customer.Phone
		orderRows[i] = o
	}
	if report.Orders, err = s.insert(ctx, "orders", orderRows); err != nil {
		return nil, err
	}

	paymentRows := make([]PaymentRow, len(f.Payments))
	for i, p := range f.Payments {
		p.CustomerID = userID
		paymentRows[i] = p
	}
	if report.Payments, err = s.insert(ctx, "payments", paymentRows); err != nil {
		return nil, err
	}

	if report.Tickets, err = s.tickets(ctx, userID, f.Tickets); err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"customer_id":     userID,
		"profile_created": report.ProfileCreated,
		"orders":          report.Orders,
		"payments":        report.Payments,
		"tickets":         report.Tickets,
	}).Info("Seed applied")
	return report, nil
}

func (s *Seeder) user(ctx context.Context, c Customer) (string, map[string]any, error) {
	resp, err := s.Identity.SignInWithPassword(ctx, c.Email, c.Password)
	if err == nil && resp.User != nil {
		return resp.User.ID, resp.User.UserMetadata, nil
	}
	s.Logger.WithContext(ctx).WithError(err).Debug("Demo sign-in failed, signing up")

	data := map[string]any{"name": c.Name}
	if c.CompanyName != "" {
		data["company_name"] = c.CompanyName
	}
	if c.Phone != "" {
		data["phone"] = c.Phone
	}
	resp, err = s.Identity.SignUp(ctx, client.SignUpParams{Email: c.Email, Password: c.Password, Data: data})
	if err != nil {
		return "", nil, fmt.Errorf("seed user: %s: %w", client.Message(err), err)
	}
	if resp.User == nil {
		return "", nil, errors.New("seed user: sign-up returned no user")
	}
	return resp.User.ID, data, nil
}

// insert writes rows, skipping primary keys that already exist, and returns
// how many were new.
func (s *Seeder) insert(ctx context.Context, table string, rows any) (int, error) {
	resp, err := s.DB.From(table).OnConflict("id").IgnoreDuplicates().ExecuteInsert(ctx, rows)
	if err != nil {
		return 0, fmt.Errorf("seed %s: %w", table, err)
	}
	var inserted []map[string]any
	if err := resp.JSON(&inserted); err != nil {
		return 0, fmt.Errorf("seed %s: %w", table, err)
	}
	return len(inserted), nil
}

// tickets has no natural key, so tickets are only added to a customer
// without any.
func (s *Seeder) tickets(ctx context.Context, customerID string, rows []TicketRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	existing, err := s.Tickets.List(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("seed tickets: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	n := 0
	for _, row := range rows {
		t, err := support.NewTicket{
			Subject:  row.Subject,
			OrderID:  row.OrderID,
			Priority: row.Priority,
			Message:  row.Message,
		}.Build(customerID)
		if err != nil {
			return n, fmt.Errorf("seed tickets: %w", err)
		}
		if _, err := s.Tickets.Create(ctx, t); err != nil {
			return n, fmt.Errorf("seed tickets: %w", err)
		}
		n++
	}
	return n, nil
}
