// Package profile models the customer profile row and its persistence.
package profile

import (
	"strings"
	"time"
)

// Profile is a customer row. ID and UserID both equal the auth identity.
type Profile struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone,omitempty"`
	CompanyName     string   `json:"company_name,omitempty"`
	Address         string   `json:"address,omitempty"`
	BillingAddress  string   `json:"billing_address,omitempty"`
	ShippingAddress string   `json:"shipping_address,omitempty"`
	SecondaryPhone  string   `json:"secondary_phone,omitempty"`
	Birthday        string   `json:"birthday,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	TotalOrders     int      `json:"total_orders"`
	TotalSpent      float64  `json:"total_spent"`
	JoinedDate      string   `json:"joined_date,omitempty"`
	LastInteraction string   `json:"last_interaction,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return &c
}

// NewDefault builds the profile created on first sign-in. The name comes
// from the signup metadata, falling back to the e-mail local part.
func NewDefault(userID, email string, metadata map[string]interface{}, now time.Time) *Profile {
	name := metadataString(metadata, "name")
	if name == "" {
		name = email
		if at := strings.IndexByte(email, '@'); at >= 0 {
			name = email[:at]
		}
	}
	stamp := now.UTC().Format(time.RFC3339)
	return &Profile{
		ID:              userID,
		UserID:          userID,
		Name:            name,
		Email:           email,
		Phone:           metadataString(metadata, "phone"),
		CompanyName:     metadataString(metadata, "company_name"),
		JoinedDate:      stamp,
		LastInteraction: stamp,
	}
}

func metadataString(metadata map[string]interface{}, key string) string {
	if v, ok := metadata[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Patch is a partial profile update. Nil fields are left unchanged.
type Patch struct {
	Name            *string   `json:"name,omitempty"`
	Phone           *string   `json:"phone,omitempty"`
	CompanyName     *string   `json:"company_name,omitempty"`
	Address         *string   `json:"address,omitempty"`
	BillingAddress  *string   `json:"billing_address,omitempty"`
	ShippingAddress *string   `json:"shipping_address,omitempty"`
	SecondaryPhone  *string   `json:"secondary_phone,omitempty"`
	Birthday        *string   `json:"birthday,omitempty"`
	Tags            *[]string `json:"tags,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Phone == nil && p.CompanyName == nil && p.Address == nil &&
		p.BillingAddress == nil && p.ShippingAddress == nil && p.SecondaryPhone == nil &&
		p.Birthday == nil && p.Tags == nil
}

// Validate rejects values the profile table would not accept.
func (p Patch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &FieldError{Field: "name", Message: "Name cannot be empty"}
	}
	if p.Birthday != nil && *p.Birthday != "" {
		if _, err := time.Parse("2006-01-02", *p.Birthday); err != nil {
			return &FieldError{Field: "birthday", Message: "Birthday must be YYYY-MM-DD"}
		}
	}
	return nil
}

// Apply merges the patch into dst.
func (p Patch) Apply(dst *Profile) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&dst.Name, p.Name)
	set(&dst.Phone, p.Phone)
	set(&dst.CompanyName, p.CompanyName)
	set(&dst.Address, p.Address)
	set(&dst.BillingAddress, p.BillingAddress)
	set(&dst.ShippingAddress, p.ShippingAddress)
	set(&dst.SecondaryPhone, p.SecondaryPhone)
	set(&dst.Birthday, p.Birthday)
	if p.Tags != nil {
		dst.Tags = append([]string(nil), (*p.Tags)...)
	}
}

// FieldError is a validation failure on one field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}
