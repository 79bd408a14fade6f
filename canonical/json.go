package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

var ErrMalformedJSON = errors.New("malformed JSON payload")

// Encode renders v as compact JSON without HTML escaping, which is the exact
// byte form placed into biz_content and V3 request bodies.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := appendJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return Encode(v)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func appendJSON(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		if !json.Valid([]byte(v.text)) {
			return fmt.Errorf("invalid number literal %q", v.text)
		}
		buf.WriteString(v.text)
	case KindString:
		appendString(buf, v.text)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendJSON(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, field := range v.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			appendString(buf, field.Key)
			buf.WriteByte(':')
			if err := appendJSON(buf, field.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown value kind %s", v.kind)
	}
	return nil
}

func appendString(buf *bytes.Buffer, s string) {
	var scratch bytes.Buffer
	encoder := json.NewEncoder(&scratch)
	encoder.SetEscapeHTML(false)
	// strings always encode
	_ = encoder.Encode(s)
	buf.Write(bytes.TrimSuffix(scratch.Bytes(), []byte("\n")))
}

// FromJSON parses data into a Value, keeping object key order and number
// literals. Trailing data after the first value is rejected.
func FromJSON(data []byte) (Value, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	value, err := decodeValue(decoder)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedJSON)
	}
	return value, nil
}

func decodeValue(decoder *json.Decoder) (Value, error) {
	token, err := decoder.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := token.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for decoder.More() {
				item, err := decodeValue(decoder)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := decoder.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: KindArray, items: items}, nil
		case '{':
			object := newObjectBuilder(0)
			for decoder.More() {
				keyToken, err := decoder.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyToken.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyToken)
				}
				item, err := decodeValue(decoder)
				if err != nil {
					return Value{}, err
				}
				object.put(key, item)
			}
			if _, err := decoder.Token(); err != nil {
				return Value{}, err
			}
			return object.value(), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", token)
}

// FromAny converts plain Go data into a Value. Maps are emitted with sorted
// keys; structs and other types go through their JSON encoding.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(json.Number(strconv.FormatUint(uint64(t), 10))), nil
	case uint32:
		return Number(json.Number(strconv.FormatUint(uint64(t), 10))), nil
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10))), nil
	case float32:
		return Number(json.Number(strconv.FormatFloat(float64(t), 'f', -1, 32))), nil
	case float64:
		return Float(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for i, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items = append(items, converted)
		}
		return Value{kind: KindArray, items: items}, nil
	case []string:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			items = append(items, String(item))
		}
		return Value{kind: KindArray, items: items}, nil
	case map[string]string:
		fields := make([]Field, 0, len(t))
		for _, key := range sortedKeys(t) {
			fields = append(fields, Field{Key: key, Value: String(t[key])})
		}
		return Value{kind: KindObject, fields: fields}, nil
	case map[string]any:
		fields := make([]Field, 0, len(t))
		for _, key := range sortedKeys(t) {
			converted, err := FromAny(t[key])
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", key, err)
			}
			fields = append(fields, Field{Key: key, Value: converted})
		}
		return Value{kind: KindObject, fields: fields}, nil
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return Value{}, fmt.Errorf("unsupported payload type %T: %w", in, err)
	}
	return FromJSON(raw)
}

// Decode unmarshals v into target through its JSON form.
func (v Value) Decode(target any) error {
	raw, err := Encode(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
