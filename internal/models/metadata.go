package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a JSON object stored in a TEXT column. A nil Metadata is
// stored as NULL.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan metadata: %w", err)
	}
	*m = out
	return nil
}

// JSON returns the document as a JSON string, "{}" when nil.
func (m Metadata) JSON() string {
	if m == nil {
		return "{}"
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseMetadata decodes raw JSON and rejects anything but an object.
func ParseMetadata(raw []byte) (Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return Metadata(obj), nil
}
