// Package support manages customer support tickets.
package support

import (
	"strings"
	"unicode/utf8"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Ticket statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

const (
	maxSubjectLen = 200
	maxMessageLen = 5000
)

// Ticket is a row of the support_tickets table.
type Ticket struct {
	ID          string `json:"id,omitempty"`
	CustomerID  string `json:"customer_id"`
	Subject     string `json:"subject"`
	OrderID     *int64 `json:"order_id,omitempty"`
	Priority    string `json:"priority"`
	Message     string `json:"message"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at,omitempty"`
	LastReplyAt string `json:"last_reply_at,omitempty"`
}

// NewTicket is the customer-submitted form.
type NewTicket struct {
	Subject  string `json:"subject"`
	OrderID  *int64 `json:"order_id,omitempty"`
	Priority string `json:"priority,omitempty"`
	Message  string `json:"message"`
}

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Build validates the form and returns the open ticket to insert for
// customerID. Priority defaults to medium.
func (n NewTicket) Build(customerID string) (*Ticket, error) {
	subject := strings.TrimSpace(n.Subject)
	message := strings.TrimSpace(n.Message)

	switch {
	case subject == "":
		return nil, &ValidationError{Field: "subject", Message: "Subject is required"}
	case utf8.RuneCountInString(subject) > maxSubjectLen:
		return nil, &ValidationError{Field: "subject", Message: "Subject is too long"}
	case message == "":
		return nil, &ValidationError{Field: "message", Message: "Message is required"}
	case utf8.RuneCountInString(message) > maxMessageLen:
		return nil, &ValidationError{Field: "message", Message: "Message is too long"}
	}

	priority := strings.ToLower(strings.TrimSpace(n.Priority))
	switch priority {
	case "":
		priority = PriorityMedium
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return nil, &ValidationError{Field: "priority", Message: "Priority must be low, medium or high"}
	}

	if n.OrderID != nil && *n.OrderID <= 0 {
		return nil, &ValidationError{Field: "order_id", Message: "Order id must be positive"}
	}

	return &Ticket{
		CustomerID: customerID,
		Subject:    subject,
		OrderID:    n.OrderID,
		Priority:   priority,
		Message:    message,
		Status:     StatusOpen,
	}, nil
}
