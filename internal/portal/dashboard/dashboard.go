// Package dashboard assembles the landing page summary from a customer's
// orders and payments.
package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/printflow/portal/internal/portal/orders"
	"github.com/printflow/portal/internal/portal/payments"
	"github.com/printflow/portal/internal/portal/view"
)

const (
	recentOrders   = 3
	recentPayments = 2

	// StatusPending is the order status counted as pending.
	StatusPending = "pending"
)

// Summary is the dashboard page model.
type Summary struct {
	TotalOrders    int                `json:"total_orders"`
	PendingOrders  int                `json:"pending_orders"`
	TotalSpent     float64            `json:"total_spent"`
	MonthToDate    float64            `json:"month_to_date"`
	RecentOrders   []orders.Order     `json:"recent_orders"`
	RecentPayments []payments.Payment `json:"recent_payments"`
}

// Build reduces the customer's orders and payments, both newest first.
func Build(orderList []orders.Order, paymentList []payments.Payment, now time.Time) Summary {
	return Summary{
		TotalOrders:    len(orderList),
		PendingOrders:  orders.CountStatus(orderList, StatusPending),
		TotalSpent:     orders.TotalAmount(orderList),
		MonthToDate:    orders.MonthToDate(orderList, now),
		RecentOrders:   head(orderList, recentOrders),
		RecentPayments: head(paymentList, recentPayments),
	}
}

func head[T any](list []T, n int) []T {
	if len(list) < n {
		n = len(list)
	}
	out := make([]T, n)
	copy(out, list[:n])
	return out
}

// Service loads the dashboard for one customer.
type Service struct {
	Orders   orders.Repository
	Payments payments.Repository
	Now      func() time.Time
}

// Load fetches orders and payments concurrently. The summary needs every
// order, so only payments are limited. Either fetch failing fails the view.
func (s *Service) Load(ctx context.Context, customerID string) view.Result[Summary] {
	var (
		orderList   []orders.Order
		paymentList []payments.Payment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orderList, err = s.Orders.List(gctx, customerID, 0)
		return err
	})
	g.Go(func() error {
		var err error
		paymentList, err = s.Payments.List(gctx, customerID, recentPayments)
		return err
	})
	if err := g.Wait(); err != nil {
		return view.Failed[Summary]("Could not load your dashboard. Please try again.", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	summary := Build(orderList, paymentList, now())
	if len(orderList) == 0 && len(paymentList) == 0 {
		return view.Empty(summary)
	}
	return view.OK(summary)
}
