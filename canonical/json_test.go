package canonical

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func mustEncode(t *testing.T, v Value) string {
	t.Helper()
	encoded, err := Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(encoded)
}

func TestFromJSONKeepsOrderAndNumbers(t *testing.T) {
	raw := `{"z":1,"a":{"y":0.10,"b":[true,null,"s"]},"m":-2e3}`
	value, err := FromJSON([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	expectKeys(t, value, "z", "a", "m")
	if encoded := mustEncode(t, value); encoded != raw {
		t.Fatalf("expected byte-identical round trip\n%s\ngot\n%s", raw, encoded)
	}
}

func TestFromJSONRepeatedKeyKeepsFirstPosition(t *testing.T) {
	value, err := FromJSON([]byte(`{"a":1,"b":2,"a":3}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if encoded := mustEncode(t, value); encoded != `{"a":3,"b":2}` {
		t.Fatalf("unexpected object %s", encoded)
	}
}

func TestWideObjectDecodesAndRenamesInLinearTime(t *testing.T) {
	const width = 50000
	var builder strings.Builder
	builder.WriteByte('{')
	for i := 0; i < width; i++ {
		if i > 0 {
			builder.WriteByte(',')
		}
		fmt.Fprintf(&builder, `"field_name_%d":"v%d"`, i, i)
	}
	builder.WriteByte('}')

	start := time.Now()
	value, err := FromJSON([]byte(builder.String()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	caller := ToCallerCase(value)
	gateway := ToGatewayCase(caller)
	elapsed := time.Since(start)

	if caller.Len() != width || gateway.Len() != width {
		t.Fatalf("expected %d fields, got %d caller and %d gateway", width, caller.Len(), gateway.Len())
	}
	keys := caller.Keys()
	if keys[0] != "fieldName_0" || keys[width-1] != fmt.Sprintf("fieldName_%d", width-1) {
		t.Fatalf("unexpected key order around %q .. %q", keys[0], keys[width-1])
	}
	if !gateway.Equal(value) {
		t.Fatal("expected gateway case to restore the decoded object")
	}
	if elapsed > 5*time.Second {
		t.Fatalf("decoding and renaming %d fields took %s", width, elapsed)
	}
}

func TestFromJSONRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", "{", `{"a":}`, `{"a":1} trailing`, `[1,]`} {
		if _, err := FromJSON([]byte(raw)); !errors.Is(err, ErrMalformedJSON) {
			t.Fatalf("input %q: expected ErrMalformedJSON, got %v", raw, err)
		}
	}
}

func TestEncodeDoesNotEscapeHTML(t *testing.T) {
	if encoded := mustEncode(t, Object(F("subject", String("<a & b>")))); encoded != `{"subject":"<a & b>"}` {
		t.Fatalf("unexpected encoding %s", encoded)
	}
}

func TestEncodeRejectsInvalidNumber(t *testing.T) {
	if _, err := Encode(Number("1.2.3")); err == nil {
		t.Fatal("expected invalid number literal to be rejected")
	}
}

func TestFromAny(t *testing.T) {
	type goods struct {
		GoodsID string `json:"goodsId"`
		Price   int    `json:"price"`
	}
	value, err := FromAny(map[string]any{
		"outTradeNo": "T1",
		"amount":     12.5,
		"count":      3,
		"ok":         true,
		"tags":       []string{"a", "b"},
		"goods":      []any{goods{GoodsID: "g1", Price: 0}},
		"nothing":    nil,
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := `{"amount":12.5,"count":3,"goods":[{"goodsId":"g1","price":0}],"nothing":null,"ok":true,"outTradeNo":"T1","tags":["a","b"]}`
	if encoded := mustEncode(t, value); encoded != want {
		t.Fatalf("expected sorted keys\n%s\ngot\n%s", want, encoded)
	}
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	if _, err := FromAny(map[string]any{"fn": func() {}}); err == nil {
		t.Fatal("expected function value to be rejected")
	}
}

func TestValueJSONInterop(t *testing.T) {
	type envelope struct {
		Payload Value `json:"payload"`
	}
	var decoded envelope
	if err := json.Unmarshal([]byte(`{"payload":{"b":1,"a":"x"}}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	expectKeys(t, decoded.Payload, "b", "a")

	out, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"payload":{"b":1,"a":"x"}}` {
		t.Fatalf("unexpected marshal output %s", out)
	}
}

func TestDecodeIntoStruct(t *testing.T) {
	value := ToCallerCase(Object(F("trade_no", String("2013")), F("total_amount", Number("88.88"))))
	var loose map[string]any
	if err := value.Decode(&loose); err != nil {
		t.Fatalf("decode into map: %v", err)
	}
	if loose["tradeNo"] != "2013" {
		t.Fatalf("expected tradeNo 2013, got %v", loose["tradeNo"])
	}

	var out struct {
		TradeNo     string `json:"tradeNo"`
		TotalAmount string `json:"totalAmount"`
	}
	value = value.Set("totalAmount", String("88.88"))
	if err := value.Decode(&out); err != nil {
		t.Fatalf("decode into struct: %v", err)
	}
	if out.TradeNo != "2013" || out.TotalAmount != "88.88" {
		t.Fatalf("unexpected struct %+v", out)
	}
}
