package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/printflow/portal/internal/errors"
	"github.com/printflow/portal/internal/httputil"
	"github.com/printflow/portal/internal/portal/auth"
	"github.com/printflow/portal/internal/portal/dashboard"
	"github.com/printflow/portal/internal/portal/format"
	"github.com/printflow/portal/internal/portal/orders"
	"github.com/printflow/portal/internal/portal/payments"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/support"
	"github.com/printflow/portal/internal/portal/view"
)

const (
	reasonOrders   = "Could not load your orders. Please try again."
	reasonOrder    = "Could not load this order. Please try again."
	reasonInvoices = "Could not load your invoices. Please try again."
	reasonInvoice  = "Could not load this invoice. Please try again."
	reasonTickets  = "Could not load your support tickets. Please try again."
	reasonStats    = "Could not load your order statistics."
	maxListLimit   = 1000
)

// orderItem is an order with its display fields.
type orderItem struct {
	orders.Order
	Number       string `json:"number"`
	Badge        string `json:"badge"`
	TotalDisplay string `json:"total_display"`
	DateDisplay  string `json:"date_display"`
}

func newOrderItem(o orders.Order) orderItem {
	return orderItem{
		Order:        o,
		Number:       o.Number(),
		Badge:        format.Badge(o.Status),
		TotalDisplay: format.INR(o.TotalAmount),
		DateDisplay:  format.DateString(o.CreatedAt),
	}
}

func orderItems(list []orders.Order) []orderItem {
	out := make([]orderItem, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderItem(o))
	}
	return out
}

// invoiceItem is a payment shown as an invoice.
type invoiceItem struct {
	payments.Payment
	InvoiceNumber  string  `json:"invoice_number"`
	Badge          string  `json:"badge"`
	Balance        float64 `json:"balance"`
	TotalDisplay   string  `json:"total_display"`
	BalanceDisplay string  `json:"balance_display"`
	DueDisplay     string  `json:"due_display,omitempty"`
}

func newInvoiceItem(p payments.Payment) invoiceItem {
	return invoiceItem{
		Payment:        p,
		InvoiceNumber:  p.InvoiceNumber(),
		Badge:          format.Badge(p.Status),
		Balance:        p.Balance(),
		TotalDisplay:   format.INR(p.TotalAmount),
		BalanceDisplay: format.INR(p.Balance()),
		DueDisplay:     format.DateString(p.DueDate),
	}
}

func invoiceItems(list []payments.Payment) []invoiceItem {
	out := make([]invoiceItem, 0, len(list))
	for _, p := range list {
		out = append(out, newInvoiceItem(p))
	}
	return out
}

// writeView renders a view result. Failed views are logged and sent as 502
// with the customer-facing reason.
func (s *Server) writeView(w http.ResponseWriter, r *http.Request, status view.Status, err error, body interface{}) {
	if status == view.StatusError {
		s.logger.WithContext(r.Context()).WithError(err).Error("View load failed")
		httputil.WriteJSON(w, http.StatusBadGateway, body)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, errors.Validation("limit", "limit must be between 1 and "+strconv.Itoa(maxListLimit))
	}
	return n, nil
}

type profileStats struct {
	OrderCount   int     `json:"order_count"`
	TotalSpent   float64 `json:"total_spent"`
	SpentDisplay string  `json:"spent_display"`
}

type profileResponse struct {
	Profile *profile.Profile          `json:"profile"`
	Stats   view.Result[profileStats] `json:"stats"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}

	list, err := s.orders.List(cust.ctx, cust.profile.ID, 0)
	var stats view.Result[profileStats]
	if err != nil {
		s.logger.WithContext(cust.ctx).WithError(err).Warn("Failed to load profile order statistics")
		stats = view.Failed[profileStats](reasonStats, err)
	} else {
		total := orders.TotalAmount(list)
		stats = view.OK(profileStats{OrderCount: len(list), TotalSpent: total, SpentDisplay: format.INR(total)})
	}
	httputil.WriteJSON(w, http.StatusOK, profileResponse{Profile: cust.profile, Stats: stats})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	c, err := s.lookup(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if c == nil {
		httputil.WriteError(w, r, errors.NotAuthenticated())
		return
	}
	var patch profile.Patch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := c.Wait(r.Context()); err != nil {
		httputil.WriteError(w, r, errors.Unavailable("Request cancelled", err))
		return
	}

	updated, err := c.UpdateProfile(r.Context(), patch)
	var fieldErr *profile.FieldError
	switch {
	case err == nil:
		httputil.WriteJSON(w, http.StatusOK, updated)
	case errors.Is(err, auth.ErrNotAuthenticated):
		httputil.WriteError(w, r, errors.NotAuthenticated())
	case errors.As(err, &fieldErr):
		httputil.WriteError(w, r, errors.Validation(fieldErr.Field, fieldErr.Message))
	default:
		httputil.WriteError(w, r, errors.Upstream("Could not update your profile. Please try again.", err))
	}
}

type dashboardResponse struct {
	dashboard.Summary
	RecentOrders       []orderItem   `json:"recent_orders"`
	RecentPayments     []invoiceItem `json:"recent_payments"`
	TotalSpentDisplay  string        `json:"total_spent_display"`
	MonthToDateDisplay string        `json:"month_to_date_display"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}

	res := s.dashboard.Load(cust.ctx, cust.profile.ID)
	if res.Failed() {
		s.writeView(w, r, res.Status, res.Err(), view.Failed[dashboardResponse](res.Reason, res.Err()))
		return
	}
	body := dashboardResponse{
		Summary:            res.Data,
		RecentOrders:       orderItems(res.Data.RecentOrders),
		RecentPayments:     invoiceItems(res.Data.RecentPayments),
		TotalSpentDisplay:  format.INR(res.Data.TotalSpent),
		MonthToDateDisplay: format.INR(res.Data.MonthToDate),
	}
	out := view.OK(body)
	if res.Status == view.StatusEmpty {
		out = view.Empty(body)
	}
	s.writeView(w, r, out.Status, nil, out)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := orders.Filter{Query: q.Get("q"), Status: q.Get("status")}

	list, err := s.orders.List(cust.ctx, cust.profile.ID, limit)
	res := view.List(orderItems(filter.Apply(list)), err, reasonOrders)
	s.writeView(w, r, res.Status, res.Err(), res)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, r, errors.NotFound("Order", raw))
		return
	}

	o, err := s.orders.Get(cust.ctx, cust.profile.ID, id)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		httputil.WriteError(w, r, errors.NotFound("Order", raw))
	case err != nil:
		s.writeView(w, r, view.StatusError, err, view.Failed[orderItem](reasonOrder, err))
	default:
		httputil.WriteJSON(w, http.StatusOK, view.OK(newOrderItem(*o)))
	}
}

type invoiceListResponse struct {
	view.Result[[]invoiceItem]
	Summary            payments.Summary `json:"summary"`
	BilledDisplay      string           `json:"billed_display"`
	PaidDisplay        string           `json:"paid_display"`
	OutstandingDisplay string           `json:"outstanding_display"`
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := payments.Filter{Query: q.Get("q"), Status: q.Get("status")}

	// The summary cards cover every invoice, so the limit only caps the
	// filtered rows.
	list, err := s.payments.List(cust.ctx, cust.profile.ID, 0)
	summary := payments.Summarize(list)
	rows := filter.Apply(list)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	body := invoiceListResponse{
		Result:             view.List(invoiceItems(rows), err, reasonInvoices),
		Summary:            summary,
		BilledDisplay:      format.INR(summary.TotalBilled),
		PaidDisplay:        format.INR(summary.TotalPaid),
		OutstandingDisplay: format.INR(summary.Outstanding),
	}
	s.writeView(w, r, body.Status, body.Err(), body)
}

type billTo struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	BillingAddress string `json:"billing_address,omitempty"`
}

type invoiceDetail struct {
	Invoice invoiceItem `json:"invoice"`
	BillTo  billTo      `json:"bill_to"`
	Order   *orderItem  `json:"order,omitempty"`
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]

	p, err := s.payments.Get(cust.ctx, cust.profile.ID, id)
	switch {
	case errors.Is(err, payments.ErrNotFound):
		httputil.WriteError(w, r, errors.NotFound("Invoice", id))
		return
	case err != nil:
		s.writeView(w, r, view.StatusError, err, view.Failed[invoiceDetail](reasonInvoice, err))
		return
	}

	address := cust.profile.BillingAddress
	if address == "" {
		address = cust.profile.Address
	}
	detail := invoiceDetail{
		Invoice: newInvoiceItem(*p),
		BillTo: billTo{
			Name:           cust.profile.Name,
			Email:          cust.profile.Email,
			Phone:          cust.profile.Phone,
			CompanyName:    cust.profile.CompanyName,
			BillingAddress: address,
		},
	}
	if p.OrderID != nil {
		o, err := s.orders.Get(cust.ctx, cust.profile.ID, *p.OrderID)
		switch {
		case err == nil:
			item := newOrderItem(*o)
			detail.Order = &item
		case !errors.Is(err, orders.ErrNotFound):
			// The invoice is still useful without its order.
			s.logger.WithContext(cust.ctx).WithError(err).Warn("Failed to load order linked to invoice")
		}
	}
	httputil.WriteJSON(w, http.StatusOK, view.OK(detail))
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}
	list, err := s.tickets.List(cust.ctx, cust.profile.ID)
	res := view.List(list, err, reasonTickets)
	s.writeView(w, r, res.Status, res.Err(), res)
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	cust, ok := s.requireCustomer(w, r)
	if !ok {
		return
	}
	var form support.NewTicket
	if err := httputil.DecodeJSON(r, &form); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	ticket, err := form.Build(cust.profile.ID)
	var verr *support.ValidationError
	if errors.As(err, &verr) {
		httputil.WriteError(w, r, errors.Validation(verr.Field, verr.Message))
		return
	}
	if err != nil {
		httputil.WriteError(w, r, errors.BadRequest(err.Error()))
		return
	}

	created, err := s.tickets.Create(cust.ctx, ticket)
	if err != nil {
		httputil.WriteError(w, r, errors.Upstream("Could not submit your ticket. Please try again.", err))
		return
	}
	s.logger.WithContext(cust.ctx).WithField("ticket_id", created.ID).Info("Support ticket created")
	httputil.WriteJSON(w, http.StatusCreated, created)
}
