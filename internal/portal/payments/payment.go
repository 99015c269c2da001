// Package payments reads a customer's invoices (payment rows) and computes
// the billing summary.
package payments

import (
	"strconv"
	"strings"
)

// Status values of the payments table.
const (
	StatusPaid    = "Paid"
	StatusPartial = "Partial"
	StatusDue     = "Due"
)

// Payment is a row of the payments table. Each row is shown as an invoice.
type Payment struct {
	ID            string  `json:"id"`
	CustomerID    string  `json:"customer_id"`
	OrderID       *int64  `json:"order_id,omitempty"`
	TotalAmount   float64 `json:"total_amount"`
	AmountPaid    float64 `json:"amount_paid"`
	DueDate       string  `json:"due_date,omitempty"`
	Status        string  `json:"status"`
	PaymentDate   string  `json:"payment_date,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	Notes         string  `json:"notes,omitempty"`
	CreatedBy     string  `json:"created_by,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// Balance is the unpaid part of the invoice.
func (p Payment) Balance() float64 {
	return p.TotalAmount - p.AmountPaid
}

// InvoiceNumber is the display identifier: "INV-" and the first eight
// characters of the payment id, upper-cased.
func (p Payment) InvoiceNumber() string {
	id := p.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "INV-" + strings.ToUpper(id)
}

// Outstanding reports whether the invoice still has money owed.
func (p Payment) Outstanding() bool {
	return strings.EqualFold(p.Status, StatusDue) || strings.EqualFold(p.Status, StatusPartial)
}

// Filter is the invoices page search box and status dropdown.
type Filter struct {
	Query  string
	Status string
}

// Matches reports whether p passes the filter. Search is a case-insensitive
// substring match on the payment id, invoice number, order id and notes.
func (f Filter) Matches(p Payment) bool {
	if s := strings.TrimSpace(f.Status); s != "" && !strings.EqualFold(s, "all") {
		if !strings.EqualFold(p.Status, s) {
			return false
		}
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	fields := []string{p.ID, p.InvoiceNumber(), p.Notes}
	if p.OrderID != nil {
		fields = append(fields, strconv.FormatInt(*p.OrderID, 10), "ord-"+strconv.FormatInt(*p.OrderID, 10))
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Apply returns the payments passing the filter, preserving order.
func (f Filter) Apply(list []Payment) []Payment {
	out := make([]Payment, 0, len(list))
	for _, p := range list {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Summary totals the invoices page header cards.
type Summary struct {
	TotalBilled float64 `json:"total_billed"`
	TotalPaid   float64 `json:"total_paid"`
	Outstanding float64 `json:"outstanding"`
}

// Summarize reduces list into a Summary. Outstanding counts only Due and
// Partial invoices.
func Summarize(list []Payment) Summary {
	var s Summary
	for _, p := range list {
		s.TotalBilled += p.TotalAmount
		s.TotalPaid += p.AmountPaid
		if p.Outstanding() {
			s.Outstanding += p.Balance()
		}
	}
	return s
}
