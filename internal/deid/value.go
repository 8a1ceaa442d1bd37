package deid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind uint8

// Value kinds. The zero Value is a null scalar.
const (
	KindScalar      Kind = iota // null, bool, or number; never rewritten
	KindText                    // string leaf; the only kind that carries PII
	KindSequence                // ordered list of values
	KindMapping                 // key-ordered mapping of values
	KindUnsupported             // anything else; passed through with a warning
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindText:
		return "text"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unsupported"
	}
}

// Field is one key/value pair of a mapping.
type Field struct {
	Key   string
	Value Value
}

// Value is a node of a parsed document: pages, rows, cells, and the text
// inside them. Mappings keep their keys in document order.
type Value struct {
	kind   Kind
	text   string
	raw    any // scalar payload, or the original Go value for KindUnsupported
	items  []Value
	fields []Field
}

// Text returns a text leaf.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Scalar returns a non-text leaf. v should be nil, a bool, or a number.
func Scalar(v any) Value { return Value{kind: KindScalar, raw: v} }

// Null returns the null scalar.
func Null() Value { return Value{} }

// Sequence returns an ordered list of values.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, items: items}
}

// Mapping returns a mapping with fields in the given order.
func Mapping(fields ...Field) Value {
	if fields == nil {
		fields = []Field{}
	}
	return Value{kind: KindMapping, fields: fields}
}

// KV is shorthand for a mapping field.
func KV(key string, v Value) Field { return Field{Key: key, Value: v} }

// Unsupported wraps a Go value the engine does not know how to walk.
func Unsupported(v any) Value { return Value{kind: KindUnsupported, raw: v} }

// FromAny converts plain Go data (as produced by encoding/json or a parser)
// into a Value. Keys of Go maps carry no order and are sorted.
func FromAny(v any) Value {
	switch val := v.(type) {
	case Value:
		return val
	case nil:
		return Null()
	case string:
		return Text(val)
	case bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Scalar(val)
	case []any:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = FromAny(item)
		}
		return Sequence(items...)
	case []string:
		items := make([]Value, len(val))
		for i, item := range val {
			items[i] = Text(item)
		}
		return Sequence(items...)
	case map[string]any:
		keys := sortedKeys(val)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = KV(k, FromAny(val[k]))
		}
		return Mapping(fields...)
	case map[string]string:
		keys := sortedKeys(val)
		fields := make([]Field, len(keys))
		for i, k := range keys {
			fields[i] = KV(k, Text(val[k]))
		}
		return Mapping(fields...)
	default:
		return Unsupported(v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the text of a text leaf and "" for any other kind.
func (v Value) Str() string { return v.text }

// Raw returns the payload of a scalar or unsupported value.
func (v Value) Raw() any { return v.raw }

// Items returns the elements of a sequence.
func (v Value) Items() []Value { return v.items }

// Fields returns the fields of a mapping in order.
func (v Value) Fields() []Field { return v.fields }

// Len returns the number of items or fields.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.fields)
	}
	return 0
}

// Get returns the value stored under key in a mapping.
func (v Value) Get(key string) (Value, bool) {
	for _, f := range v.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Index returns the i-th item of a sequence.
func (v Value) Index(i int) (Value, bool) {
	if i < 0 || i >= len(v.items) {
		return Value{}, false
	}
	return v.items[i], true
}

// Interface converts the Value back to plain Go data. Mapping order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindSequence:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			out[f.Key] = f.Value.Interface()
		}
		return out
	default:
		return v.raw
	}
}

// MarshalJSON encodes the Value preserving mapping key order. HTML
// characters in text are written as-is.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindText:
		return encodeLeaf(buf, v.text)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindMapping:
		buf.WriteByte('{')
		for i, f := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeLeaf(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindUnsupported:
		if err := encodeLeaf(buf, v.raw); err != nil {
			return fmt.Errorf("%w: %T: %w", ErrUnsupportedValueType, v.raw, err)
		}
		return nil
	default:
		return encodeLeaf(buf, v.raw)
	}
}

func encodeLeaf(buf *bytes.Buffer, x any) error {
	var leaf bytes.Buffer
	enc := json.NewEncoder(&leaf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(x); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(leaf.Bytes(), "\n"))
	return nil
}

// UnmarshalJSON decodes any JSON document, keeping object keys in document
// order and numbers as json.Number.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode value: trailing data after JSON document")
	}
	*v = out
	return nil
}

// ParseJSON decodes data into a Value.
func ParseJSON(data []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("decode value: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode value: %w", err)
			}
			return Sequence(items...), nil
		case '{':
			fields := []Field{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("decode value: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("decode value: object key %v is not a string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, KV(key, val))
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode value: %w", err)
			}
			return Mapping(fields...), nil
		default:
			return Value{}, fmt.Errorf("decode value: unexpected delimiter %q", t)
		}
	case string:
		return Text(t), nil
	default:
		return Scalar(t), nil
	}
}
