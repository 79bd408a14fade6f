package canonical

import (
	"strings"
	"unicode"
)

// Decamelize converts a caller-case key to gateway case: outTradeNo becomes
// out_trade_no. An uppercase run counts as one word, so XMLHttpRequest
// becomes xml_http_request.
func Decamelize(s string) string {
	runes := []rune(s)
	var builder strings.Builder
	builder.Grow(len(s) + 4)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			switch {
			case unicode.IsLower(prev), unicode.IsDigit(prev):
				builder.WriteByte('_')
			case unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				builder.WriteByte('_')
			}
		}
		builder.WriteRune(unicode.ToLower(r))
	}
	return builder.String()
}

// Camelize converts a gateway-case key to caller case: every underscore
// followed by a letter is dropped and the letter upper-cased.
func Camelize(s string) string {
	runes := []rune(s)
	var builder strings.Builder
	builder.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		if runes[i] == '_' && i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
			builder.WriteRune(unicode.ToUpper(runes[i+1]))
			i++
			continue
		}
		builder.WriteRune(runes[i])
	}
	return builder.String()
}

// ToGatewayCase returns a copy of v with every object key, at any depth,
// rewritten with Decamelize.
func ToGatewayCase(v Value) Value {
	return renameKeys(v, Decamelize)
}

// ToCallerCase returns a copy of v with every object key, at any depth,
// rewritten with Camelize.
func ToCallerCase(v Value) Value {
	return renameKeys(v, Camelize)
}

// renameKeys rewrites keys recursively. Two keys that collapse onto the same
// name keep the first position and the later value.
func renameKeys(v Value, rename func(string) string) Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.items))
		for i, item := range v.items {
			items[i] = renameKeys(item, rename)
		}
		return Value{kind: KindArray, items: items}
	case KindObject:
		builder := newObjectBuilder(len(v.fields))
		for _, field := range v.fields {
			builder.put(rename(field.Key), renameKeys(field.Value, rename))
		}
		return builder.value()
	}
	return v
}

// IsEmpty reports whether v is elided from parameter sets: null or "".
// Zero and false are real values.
func IsEmpty(v Value) bool {
	return v.kind == KindNull || (v.kind == KindString && v.text == "")
}

// RemoveEmptyValues drops the top-level object entries that are null or the
// empty string. Non-object values are returned unchanged.
func RemoveEmptyValues(v Value) Value {
	if v.kind != KindObject {
		return v
	}
	fields := make([]Field, 0, len(v.fields))
	for _, field := range v.fields {
		if IsEmpty(field.Value) {
			continue
		}
		fields = append(fields, field)
	}
	return Value{kind: KindObject, fields: fields}
}

// RemoveEmpty is RemoveEmptyValues for flat string parameter maps.
func RemoveEmpty(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
