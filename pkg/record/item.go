// Package record holds the items returned by the Graph API and the final
// ordering applied to a merged result set.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Item is a single Graph API object as decoded from a page's "value" array.
// Numbers are kept as json.Number so a dump reproduces them exactly.
type Item map[string]any

// Key returns the value of field as a string. Missing or null fields yield "".
func (i Item) Key(field string) string {
	v, ok := i[field]
	if !ok || v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// DecodeItems decodes a JSON array of objects, preserving number literals.
func DecodeItems(data []byte) ([]Item, error) {
	var items []Item
	if err := Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Unmarshal decodes data into v using json.Number for numeric values.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
