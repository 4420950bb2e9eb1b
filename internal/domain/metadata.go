package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type metaKind uint8

const (
	metaString metaKind = iota
	metaNumber
	metaBool
)

// MetaValue is a metadata value: a string, a decimal number or a bool.
type MetaValue struct {
	kind metaKind
	str  string
	num  decimal.Decimal
	b    bool
}

func MetaString(s string) MetaValue { return MetaValue{kind: metaString, str: s} }
func MetaNumber(d decimal.Decimal) MetaValue { return MetaValue{kind: metaNumber, num: d} }
func MetaBool(b bool) MetaValue { return MetaValue{kind: metaBool, b: b} }

// String returns the value rendered as text regardless of its kind.
func (v MetaValue) String() string {
	switch v.kind {
	case metaNumber:
		return v.num.String()
	case metaBool:
		if v.b {
			return "true"
		}
		return "false"
	}
	return v.str
}

// Number returns the numeric value and whether v holds a number.
func (v MetaValue) Number() (decimal.Decimal, bool) {
	return v.num, v.kind == metaNumber
}

// Bool returns the boolean value and whether v holds a bool.
func (v MetaValue) Bool() (bool, bool) {
	return v.b, v.kind == metaBool
}

func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case metaNumber:
		return []byte(v.num.String()), nil
	case metaBool:
		return json.Marshal(v.b)
	}
	return json.Marshal(v.str)
}

func (v *MetaValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = MetaString("")
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = MetaString(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = MetaBool(b)
	default:
		d, err := decimal.NewFromString(string(data))
		if err != nil {
			return fmt.Errorf("metadata value %s: %w", data, err)
		}
		*v = MetaNumber(d)
	}
	return nil
}

// Metadata is an open key/value bag attached to items and transactions.
type Metadata map[string]MetaValue

// Get returns the string form of key, or "" when absent.
func (m Metadata) Get(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	return v.String()
}

// Clone copies the map. MetaValue is immutable so a shallow copy suffices.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
