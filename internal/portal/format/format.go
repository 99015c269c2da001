// Package format renders statuses, money and dates the way the customer
// dashboard displays them.
package format

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Badge variants understood by the front end.
const (
	BadgeSuccess = "success"
	BadgeInfo    = "info"
	BadgeWarning = "warning"
	BadgeError   = "error"
	BadgeDefault = "default"
)

// Badge maps an order or payment status to a badge variant.
func Badge(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "delivered", "paid":
		return BadgeSuccess
	case "printing", "design", "partial":
		return BadgeInfo
	case "pending", "due":
		return BadgeWarning
	case "cancelled":
		return BadgeError
	default:
		return BadgeDefault
	}
}

// INR formats amount as Indian rupees with lakh/crore digit grouping,
// e.g. ₹1,23,456.50.
func INR(amount float64) string {
	neg := amount < 0
	paise := int64(math.Round(math.Abs(amount) * 100))
	rupees := strconv.FormatInt(paise/100, 10)
	frac := paise % 100

	var b strings.Builder
	if neg && paise != 0 {
		b.WriteByte('-')
	}
	b.WriteString("₹")
	b.WriteString(groupIndian(rupees))
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

// groupIndian inserts separators after the last three digits and then every
// two digits.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}

// Date renders t as an en-IN short date, e.g. "5 Mar 2024".
func Date(t time.Time) string {
	return t.Format("2 Jan 2006")
}

// DateString parses a stored date or timestamp and renders it with Date.
// Unparseable input is returned unchanged.
func DateString(s string) string {
	t, ok := ParseTime(s)
	if !ok {
		return s
	}
	return Date(t)
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime accepts the timestamp and date formats PostgREST emits for
// timestamptz, timestamp and date columns. Values without a zone are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
