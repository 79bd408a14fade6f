// Package canonical holds the business payload tree and the rules that map
// it between caller-case (camelCase) and gateway-case (snake_case) keys.
package canonical

import (
	"encoding/json"
	"strconv"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one node of a JSON-shaped payload. The zero Value is null.
// Objects keep their keys in insertion order; numbers keep their literal text.
type Value struct {
	kind    Kind
	boolean bool
	text    string
	items   []Value
	fields  []Field
}

// Field is one key/value entry of an object.
type Field struct {
	Key   string
	Value Value
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

func String(s string) Value { return Value{kind: KindString, text: s} }

// Number wraps a JSON number literal such as "0.01" without reformatting it.
func Number(n json.Number) Value { return Value{kind: KindNumber, text: string(n)} }

func Int(n int64) Value { return Value{kind: KindNumber, text: strconv.FormatInt(n, 10)} }

func Float(f float64) Value {
	return Value{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

func Array(items ...Value) Value {
	copied := make([]Value, len(items))
	copy(copied, items)
	return Value{kind: KindArray, items: copied}
}

// Object builds an object from fields. A repeated key keeps its first
// position and takes the last value.
func Object(fields ...Field) Value {
	builder := newObjectBuilder(len(fields))
	for _, field := range fields {
		builder.put(field.Key, field.Value)
	}
	return builder.value()
}

// objectBuilder appends fields in one pass. A repeated key keeps its first
// position and takes the last value.
type objectBuilder struct {
	fields []Field
	index  map[string]int
}

func newObjectBuilder(size int) *objectBuilder {
	return &objectBuilder{
		fields: make([]Field, 0, size),
		index:  make(map[string]int, size),
	}
}

func (b *objectBuilder) put(key string, value Value) {
	if i, ok := b.index[key]; ok {
		b.fields[i].Value = value
		return
	}
	b.index[key] = len(b.fields)
	b.fields = append(b.fields, Field{Key: key, Value: value})
}

func (b *objectBuilder) value() Value {
	return Value{kind: KindObject, fields: b.fields}
}

func F(key string, value Value) Field { return Field{Key: key, Value: value} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload of a string value, or the literal of a number.
func (v Value) Str() string { return v.text }

func (v Value) BoolValue() bool { return v.boolean }

// Len is the number of items of an array or fields of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.fields)
	}
	return 0
}

func (v Value) Items() []Value {
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

func (v Value) Fields() []Field {
	out := make([]Field, len(v.fields))
	copy(out, v.fields)
	return out
}

func (v Value) Keys() []string {
	out := make([]string, 0, len(v.fields))
	for _, field := range v.fields {
		out = append(out, field.Key)
	}
	return out
}

// Get returns the value stored under key in an object.
func (v Value) Get(key string) (Value, bool) {
	for _, field := range v.fields {
		if field.Key == key {
			return field.Value, true
		}
	}
	return Value{}, false
}

// Set returns a copy of the object with key set to value. Setting on a
// non-object value yields a one-field object.
func (v Value) Set(key string, value Value) Value {
	fields := make([]Field, len(v.fields), len(v.fields)+1)
	copy(fields, v.fields)
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = value
			return Value{kind: KindObject, fields: fields}
		}
	}
	return Value{kind: KindObject, fields: append(fields, Field{Key: key, Value: value})}
}

// Scalar renders a scalar the way it appears in a flat gateway parameter:
// strings verbatim, numbers by literal, booleans as true/false, null as "".
// Arrays and objects are rendered as compact JSON.
func (v Value) Scalar() (string, error) {
	switch v.kind {
	case KindNull:
		return "", nil
	case KindBool:
		return strconv.FormatBool(v.boolean), nil
	case KindNumber, KindString:
		return v.text, nil
	default:
		raw, err := Encode(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// Equal reports deep structural equality, including object key order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolean == other.boolean
	case KindNumber, KindString:
		return v.text == other.text
	case KindArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.fields) != len(other.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Key != other.fields[i].Key || !v.fields[i].Value.Equal(other.fields[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

