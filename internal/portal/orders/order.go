// Package orders reads a customer's print orders and derives the list
// filters and totals shown on the orders and dashboard pages.
package orders

import (
	"strconv"
	"strings"
	"time"

	"github.com/printflow/portal/internal/portal/format"
)

// Order is a row of the orders table.
type Order struct {
	ID             int64    `json:"id"`
	CustomerID     string   `json:"customer_id"`
	UserID         string   `json:"user_id,omitempty"`
	Date           string   `json:"date"`
	CustomerName   string   `json:"customer_name"`
	CustomerPhone  string   `json:"customer_phone,omitempty"`
	OrderType      string   `json:"order_type"`
	Quantity       int      `json:"quantity"`
	DesignNeeded   bool     `json:"design_needed"`
	DeliveryDate   string   `json:"delivery_date,omitempty"`
	AmountReceived *float64 `json:"amount_received,omitempty"`
	PaymentMethod  string   `json:"payment_method,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Rate           *float64 `json:"rate,omitempty"`
	TotalAmount    float64  `json:"total_amount"`
	BalanceAmount  *float64 `json:"balance_amount,omitempty"`
	Status         string   `json:"status"`
	IsDeleted      bool     `json:"is_deleted"`
	DesignerID     string   `json:"designer_id,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// Number is the display identifier, e.g. "ORD-101".
func (o Order) Number() string {
	return "ORD-" + strconv.FormatInt(o.ID, 10)
}

// Created returns the parsed creation time.
func (o Order) Created() (time.Time, bool) {
	return format.ParseTime(o.CreatedAt)
}

// Balance is the amount still owed. A missing balance column falls back to
// total minus received.
func (o Order) Balance() float64 {
	if o.BalanceAmount != nil {
		return *o.BalanceAmount
	}
	received := 0.0
	if o.AmountReceived != nil {
		received = *o.AmountReceived
	}
	return o.TotalAmount - received
}

// StatusAll disables status filtering.
const StatusAll = "all"

// Filter is the orders page search box and status dropdown.
type Filter struct {
	Query  string
	Status string
}

// Matches reports whether o passes the filter. Search is a case-insensitive
// substring match on the order number and type.
func (f Filter) Matches(o Order) bool {
	if s := strings.TrimSpace(f.Status); s != "" && !strings.EqualFold(s, StatusAll) {
		if !strings.EqualFold(o.Status, s) {
			return false
		}
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(o.Number()), q) ||
		strings.Contains(strings.ToLower(o.OrderType), q)
}

// Apply returns the orders passing the filter, preserving order.
func (f Filter) Apply(list []Order) []Order {
	out := make([]Order, 0, len(list))
	for _, o := range list {
		if f.Matches(o) {
			out = append(out, o)
		}
	}
	return out
}

// TotalAmount sums total_amount.
func TotalAmount(list []Order) float64 {
	sum := 0.0
	for _, o := range list {
		sum += o.TotalAmount
	}
	return sum
}

// CountStatus counts orders whose status equals status, ignoring case.
func CountStatus(list []Order, status string) int {
	n := 0
	for _, o := range list {
		if strings.EqualFold(o.Status, status) {
			n++
		}
	}
	return n
}

// MonthToDate sums total_amount over orders created in now's calendar month
// and year, in now's location.
func MonthToDate(list []Order, now time.Time) float64 {
	sum := 0.0
	for _, o := range list {
		created, ok := o.Created()
		if !ok {
			continue
		}
		created = created.In(now.Location())
		if created.Year() == now.Year() && created.Month() == now.Month() {
			sum += o.TotalAmount
		}
	}
	return sum
}
