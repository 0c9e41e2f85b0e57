package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/WithSecureOpenSource/mittn/value"
)

func TestFormCodecEncode(t *testing.T) {
	v := value.Map(
		value.Entry{Key: []byte("a"), Value: value.Str("x y")},
		value.Entry{Key: []byte("b"), Value: value.Seq(value.Str("1"), value.Str("2"))},
		value.Entry{Key: []byte("c"), Value: value.Null()},
	)
	got := string(FormCodec{}.Encode(v))
	want := "a=x+y&b=1,2&c="
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestURLParamCodecEncode(t *testing.T) {
	v := value.Map(
		value.Entry{Key: []byte("keyword1"), Value: value.Seq(value.Str("value1"), value.Str("value2"))},
		value.Entry{Key: []byte("keyword2"), Value: value.Str("value3")},
	)
	got := string(URLParamCodec{}.Encode(v))
	want := "keyword1=value1,value2;keyword2=value3"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestFormCodecDecodeRoundTrip(t *testing.T) {
	in := "a=x+y&b=1,2&c="
	v, err := FormCodec{}.Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := string(FormCodec{}.Encode(v))
	if out != in {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}

func TestFormCodecDecodeSplitsMultiValue(t *testing.T) {
	v, err := FormCodec{}.Decode([]byte("b=1,2"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b := v.Entries()[0].Value
	if b.Kind() != value.KindSeq || len(b.Elems()) != 2 {
		t.Fatalf("b = %+v, want a 2-element Seq", b)
	}
	if string(b.Elems()[0].BytesValue()) != "1" || string(b.Elems()[1].BytesValue()) != "2" {
		t.Errorf("b elems = %q, %q, want 1, 2", b.Elems()[0].BytesValue(), b.Elems()[1].BytesValue())
	}
}

func TestFormCodecDecodeRejectsMissingEquals(t *testing.T) {
	if _, err := (FormCodec{}).Decode([]byte("a=1&bogus")); err == nil {
		t.Fatal("expected an error for a pair with no '='")
	}
}

func TestURLParamCodecDecodeRoundTrip(t *testing.T) {
	in := "keyword1=value1,value2;keyword2=value3"
	v, err := URLParamCodec{}.Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := string(URLParamCodec{}.Encode(v))
	if out != in {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}

func TestURLParamCodecDecodeUnescapesPercentEncoding(t *testing.T) {
	v, err := URLParamCodec{}.Decode([]byte("a+b=x%2Cy"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	e := v.Entries()[0]
	if string(e.Key) != "a b" {
		t.Errorf("key = %q, want %q", e.Key, "a b")
	}
	if e.Value.Kind() != value.KindBytes || string(e.Value.BytesValue()) != "x,y" {
		t.Errorf("value = %+v, want Bytes(%q)", e.Value, "x,y")
	}
}

func TestJSONCodecEncodeASCIIOnly(t *testing.T) {
	v := value.Map(
		value.Entry{Key: []byte("a"), Value: value.Bytes([]byte{0xe5, 0xe4, 0xf6})},
	)
	got := string(JSONCodec{ASCIIOnly: true}.Encode(v))
	want := "{\"a\":\"\\u00e5\\u00e4\\u00f6\"}"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestJSONCodecEncodePassthrough(t *testing.T) {
	v := value.Map(
		value.Entry{Key: []byte("a"), Value: value.Bytes([]byte{0xff, 0xfe})},
	)
	got := JSONCodec{ASCIIOnly: false}.Encode(v)
	want := []byte{'{', '"', 'a', '"', ':', '"', 0xff, 0xfe, '"', '}'}
	if !bytesEqual(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestJSONCodecEncodeScalarsAndNesting(t *testing.T) {
	v := value.Map(
		value.Entry{Key: []byte("n"), Value: value.Null()},
		value.Entry{Key: []byte("b"), Value: value.Bool(true)},
		value.Entry{Key: []byte("i"), Value: value.Int(-7)},
		value.Entry{Key: []byte("seq"), Value: value.Seq(value.Int(1), value.Int(2))},
	)
	got := string(JSONCodec{}.Encode(v))
	want := `{"n":null,"b":true,"i":-7,"seq":[1,2]}`
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
}

func TestJSONCodecDecodePreservesKeyOrder(t *testing.T) {
	v, err := JSONCodec{}.Decode([]byte(`{"z":1,"a":2,"m":{"x":3,"y":4}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v.Kind() != value.KindMap {
		t.Fatalf("Kind() = %v, want Map", v.Kind())
	}
	var keys []string
	for _, e := range v.Entries() {
		keys = append(keys, string(e.Key))
	}
	if diff := cmp.Diff([]string{"z", "a", "m"}, keys); diff != "" {
		t.Errorf("key order mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONCodecDecodeRoundTrip(t *testing.T) {
	in := `{"a":"hi","b":[1,2,3],"c":null,"d":true,"e":1.5}`
	v, err := JSONCodec{}.Decode([]byte(in))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out := string(JSONCodec{}.Encode(v))
	if out != in {
		t.Errorf("round trip = %q, want %q", out, in)
	}
}

func TestJSONCodecDecodeIntVsFloat(t *testing.T) {
	v, err := JSONCodec{}.Decode([]byte(`{"i":3,"f":3.5}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	i := v.Entries()[0].Value
	f := v.Entries()[1].Value
	if i.Kind() != value.KindInt || i.IntValue() != 3 {
		t.Errorf("i = %+v, want Int(3)", i)
	}
	if f.Kind() != value.KindFloat || f.FloatValue() != 3.5 {
		t.Errorf("f = %+v, want Float(3.5)", f)
	}
}
