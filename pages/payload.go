package pages

import (
	"bytes"
	"encoding/json"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Payload is a booking form submission: field name to value, in fill order.
type Payload struct {
	*orderedmap.OrderedMap[string, string]
}

func NewPayload() *Payload {
	return &Payload{OrderedMap: orderedmap.New[string, string]()}
}

// ParsePayload decodes a JSON object, keeping its key order. Non-string values are rejected.
func ParsePayload(buf []byte) (*Payload, error) {
	p := NewPayload()
	if err := json.Unmarshal(bytes.TrimSpace(buf), p.OrderedMap); err != nil {
		return nil, fmt.Errorf("decoding booking payload: %w", err)
	}
	return p, nil
}

// Keys returns the field names in order.
func (p *Payload) Keys() []string {
	keys := make([]string, 0, p.Len())
	for pair := p.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Value returns the field's value or the empty string.
func (p *Payload) Value(key string) string {
	v, _ := p.Get(key)
	return v
}

// FullName is how the admin report lists the guest.
func (p *Payload) FullName() string {
	return p.Value("first_name") + " " + p.Value("last_name")
}
