package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/WithSecureOpenSource/mittn/value"
)

// JSONCodec implements the JSON wire format. Unlike [encoding/json],
// it never validates that a Bytes leaf is UTF-8: fuzzed and injected
// strings are treated as a sequence of bytes, each mapped one-to-one
// onto a Unicode code point below 256, matching the "iso-8859-1" pass
// through the encoding was built around. encoding/json's Marshal
// would otherwise replace invalid UTF-8 with U+FFFD, silently
// destroying the anomaly being sent.
//
// JSONCodec also decodes, since a scenario's valid submission arrives
// as a literal JSON string in configuration and must round-trip into
// a submission tree the injector can walk; encoding/json's
// map[string]interface{} decode target doesn't preserve key order,
// which the URL- and form-serialising codecs need to stay stable, so
// decoding goes through json.Decoder's token stream instead.
type JSONCodec struct {
	// ASCIIOnly escapes every byte at or above 0x80 as \u00XX instead
	// of passing it through raw.
	ASCIIOnly bool
}

func (JSONCodec) ContentType() string { return "application/json" }

func (c JSONCodec) Encode(v value.Value) []byte {
	var buf bytes.Buffer
	c.encode(&buf, v)
	return buf.Bytes()
}

func (c JSONCodec) encode(buf *bytes.Buffer, v value.Value) {
	switch v.Kind() {
	case value.KindNull:
		buf.WriteString("null")
	case value.KindBool:
		if v.BoolValue() {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case value.KindInt:
		buf.WriteString(strconv.FormatInt(v.IntValue(), 10))
	case value.KindFloat:
		c.encodeFloat(buf, v.FloatValue())
	case value.KindBytes:
		c.encodeString(buf, v.BytesValue())
	case value.KindSeq:
		buf.WriteByte('[')
		for i, e := range v.Elems() {
			if i > 0 {
				buf.WriteByte(',')
			}
			c.encode(buf, e)
		}
		buf.WriteByte(']')
	case value.KindMap:
		buf.WriteByte('{')
		for i, e := range v.Entries() {
			if i > 0 {
				buf.WriteByte(',')
			}
			c.encodeString(buf, e.Key)
			buf.WriteByte(':')
			c.encode(buf, e.Value)
		}
		buf.WriteByte('}')
	}
}

// encodeFloat writes a JSON number, falling back to a string for the
// non-finite values JSON numbers can't represent: the classifier and
// mutator only care that the token round-trips identifiably, not that
// it's numerically valid JSON.
func (c JSONCodec) encodeFloat(buf *bytes.Buffer, f float64) {
	s := value.Stringify(value.Float(f))
	switch string(s) {
	case "NaN", "Infinity", "-Infinity":
		c.encodeString(buf, s)
	default:
		buf.Write(s)
	}
}

const hexDigits = "0123456789abcdef"

// encodeString writes b as a JSON string literal without requiring
// (or checking for) valid UTF-8: each byte is either passed through
// raw, given its standard JSON backslash escape, or rendered as a
// \u00XX escape, one byte at a time.
func (c JSONCodec) encodeString(buf *bytes.Buffer, b []byte) {
	buf.WriteByte('"')
	for _, ch := range b {
		switch ch {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		default:
			switch {
			case ch < 0x20:
				writeU00(buf, ch)
			case ch < 0x80:
				buf.WriteByte(ch)
			case c.ASCIIOnly:
				writeU00(buf, ch)
			default:
				buf.WriteByte(ch)
			}
		}
	}
	buf.WriteByte('"')
}

func writeU00(buf *bytes.Buffer, b byte) {
	buf.WriteString(`\u00`)
	buf.WriteByte(hexDigits[b>>4])
	buf.WriteByte(hexDigits[b&0xf])
}

// Decode parses a JSON document into a submission tree, preserving
// object key order. JSON numbers round-trip as Int when they parse
// as one without loss, Float otherwise.
func (JSONCodec) Decode(data []byte) (value.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return value.Value{}, fmt.Errorf("codec: decode JSON: %w", err)
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value.Value{}, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (value.Value, error) {
	switch t := tok.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(t), nil
	case string:
		return value.Str(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return value.Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return value.Value{}, fmt.Errorf("number %q: %w", t, err)
		}
		return value.Float(f), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeObject(dec)
		default:
			return value.Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return value.Value{}, fmt.Errorf("unexpected token %#v", tok)
	}
}

func decodeArray(dec *json.Decoder) (value.Value, error) {
	var elems []value.Value
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return value.Value{}, err
		}
		elems = append(elems, v)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF { // consume ']'
		return value.Value{}, err
	}
	return value.Seq(elems...), nil
}

func decodeObject(dec *json.Decoder) (value.Value, error) {
	var entries []value.Entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return value.Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return value.Value{}, fmt.Errorf("object key token %#v is not a string", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return value.Value{}, err
		}
		entries = append(entries, value.Entry{Key: []byte(key), Value: v})
	}
	if _, err := dec.Token(); err != nil && err != io.EOF { // consume '}'
		return value.Value{}, err
	}
	return value.Map(entries...), nil
}
