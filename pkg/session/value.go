package session

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the variant held by a Value
type Kind int

const (
	KindText Kind = iota
	KindBinary
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "json"
	}
}

const bytesClass = "bytes"

type taggedBytes struct {
	Class string `json:"__class__"`
	Value string `json:"__value__"`
}

// Value is one settings entry: text, binary, or an arbitrary JSON literal.
// Binary values are written as {"__class__":"bytes","__value__":<base64>}.
type Value struct {
	kind Kind
	text string
	bin  []byte
	raw  json.RawMessage
}

// Text makes a text value
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Binary makes a binary value
func Binary(b []byte) Value { return Value{kind: KindBinary, bin: b} }

// JSON makes a value from a raw JSON literal. The literal is not validated
// until the value is marshalled.
func JSON(raw json.RawMessage) Value { return Value{kind: KindJSON, raw: raw} }

// JSONOf marshals v into a JSON value
func JSONOf(v interface{}) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Value{}, err
	}
	return JSON(raw), nil
}

func (v Value) Kind() Kind { return v.kind }

// AsText returns the text if v is a text value
func (v Value) AsText() (string, bool) {
	return v.text, v.kind == KindText
}

// AsBinary returns the bytes if v is a binary value
func (v Value) AsBinary() ([]byte, bool) {
	return v.bin, v.kind == KindBinary
}

// AsJSON returns the raw literal if v is a JSON value
func (v Value) AsJSON() (json.RawMessage, bool) {
	return v.raw, v.kind == KindJSON
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindBinary:
		return json.Marshal(taggedBytes{
			Class: bytesClass,
			Value: base64.StdEncoding.EncodeToString(v.bin),
		})
	default:
		if len(v.raw) == 0 {
			return []byte("null"), nil
		}
		if !json.Valid(v.raw) {
			return nil, fmt.Errorf("invalid JSON settings value")
		}
		return v.raw, nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var tagged map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &tagged); err == nil && len(tagged) == 2 {
			var class, encoded string
			if json.Unmarshal(tagged["__class__"], &class) == nil && class == bytesClass &&
				json.Unmarshal(tagged["__value__"], &encoded) == nil {
				b, err := decodeBase64(encoded)
				if err != nil {
					return fmt.Errorf("decode bytes value: %w", err)
				}
				*v = Binary(b)
				return nil
			}
		}
	}

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	*v = JSON(raw)
	return nil
}

// decodeBase64 accepts MIME style input with line breaks
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	return base64.StdEncoding.DecodeString(s)
}
