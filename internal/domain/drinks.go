// Package domain defines the core persistence models for the application.
// This file holds the value types for extraction output embedded in a
// Submission row.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DrinkItem is one beverage line item reported by the extraction service.
// Capacity and Amount are kept as the raw strings the service returned;
// parsing with defaults happens in the scoring and fingerprint engines.
type DrinkItem struct {
	Name     string `json:"name"`
	Capacity string `json:"capacity"`
	Amount   string `json:"amount"`
}

// DrinkList is a JSON-serialized slice of drink items stored in a single
// text column.
type DrinkList []DrinkItem

// Value implements driver.Valuer, encoding the list as JSON text.
func (d DrinkList) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner, decoding JSON text or bytes.
func (d *DrinkList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		if len(v) == 0 {
			*d = nil
			return nil
		}
		return json.Unmarshal(v, d)
	case string:
		if v == "" {
			*d = nil
			return nil
		}
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("drink list: unsupported column type %T", src)
	}
}
