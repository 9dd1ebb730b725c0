package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlexString accepts a JSON string, number or null. Provider APIs are inconsistent about
// quoting identifiers.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	*f = FlexString(b)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Amount accepts a JSON number, a numeric string, an empty string or null
type Amount struct {
	decimal.NullDecimal
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		a.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	d, err := decimal.NewFromString(string(s))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	a.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

// OrZero returns the amount, or zero when absent
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Decimal
}

// ParseDate reads a YYYY-MM-DD or RFC 3339 date. Unparseable input yields nil.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}
