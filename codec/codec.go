// Package codec implements the three submission wire encodings: form
// urlencoding, URL path parameters, and JSON. All three encode and
// decode a [value.Value] map whose entries are either scalar leaves
// or Seq nodes (multiple values for one key), since scenario
// configuration supplies a valid submission as a literal wire-format
// string that must be parsed back into the tree the injector walks.
// JSON additionally supports arbitrary nesting.
package codec

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/WithSecureOpenSource/mittn/value"
)

// Codec turns a submission tree into request-body bytes for one wire
// format.
type Codec interface {
	// ContentType is the Content-Type header value this codec expects
	// the caller to send alongside its output.
	ContentType() string
	// Encode renders v, which must be a Map of scalar or Seq values,
	// as request-body bytes.
	Encode(v value.Value) []byte
}

// decodeEscapedList splits s, still in its escaped wire form, on sep
// and unescapes each part with unescapeOne, the inverse of
// encodeList: splitting before unescaping means a literal sep
// character inside a value (itself escaped by Encode) can never be
// mistaken for the separator.
func decodeEscapedList(s, sep string, unescapeOne func(string) (string, error)) (value.Value, error) {
	parts := strings.Split(s, sep)
	if len(parts) == 1 {
		dec, err := unescapeOne(parts[0])
		if err != nil {
			return value.Value{}, err
		}
		return value.Str(dec), nil
	}
	elems := make([]value.Value, len(parts))
	for i, p := range parts {
		dec, err := unescapeOne(p)
		if err != nil {
			return value.Value{}, err
		}
		elems[i] = value.Str(dec)
	}
	return value.Seq(elems...), nil
}

// stringifyLeaf renders one submission value the way the form and
// URL-parameter codecs need for percent-encoding: a Null leaf becomes
// the empty string rather than a literal "null" token, since both
// form and URL-parameter submission lost the distinction long before
// this tool existed and downstream servers expect an empty value.
func stringifyLeaf(v value.Value) []byte {
	if v.Kind() == value.KindNull {
		return nil
	}
	return value.Stringify(v)
}

// encodeList renders the scalar values under one key (a single value,
// or a Seq of them) joined by sep, calling encodeOne on each rendered
// value.
func encodeList(v value.Value, sep string, encodeOne func(string) string) string {
	if v.Kind() != value.KindSeq {
		return encodeOne(string(stringifyLeaf(v)))
	}
	parts := make([]string, len(v.Elems()))
	for i, e := range v.Elems() {
		parts[i] = encodeOne(string(stringifyLeaf(e)))
	}
	return strings.Join(parts, sep)
}

// FormCodec implements application/x-www-form-urlencoded bodies:
// "&"-joined "key=value" pairs, percent-encoded, multiple values for
// one key joined by ",".
type FormCodec struct{}

func (FormCodec) ContentType() string { return "application/x-www-form-urlencoded; charset=utf-8" }

func (FormCodec) Encode(v value.Value) []byte {
	if v.Kind() != value.KindMap {
		panic(fmt.Sprintf("codec: FormCodec.Encode requires a Map, got %s", v.Kind()))
	}
	pairs := make([]string, 0, len(v.Entries()))
	for _, e := range v.Entries() {
		key := url.QueryEscape(string(e.Key))
		vals := encodeList(e.Value, ",", url.QueryEscape)
		pairs = append(pairs, key+"="+vals)
	}
	return []byte(strings.Join(pairs, "&"))
}

// Decode parses an application/x-www-form-urlencoded body back into
// a submission tree, the inverse of Encode: "&"-separated pairs,
// percent-decoded, with a bare "," splitting a key's value back into
// a Seq the way Encode joined it.
func (FormCodec) Decode(data []byte) (value.Value, error) {
	entries := []value.Entry{}
	if len(data) == 0 {
		return value.Map(entries...), nil
	}
	for _, pair := range strings.Split(string(data), "&") {
		key, vals, ok := strings.Cut(pair, "=")
		if !ok {
			return value.Value{}, fmt.Errorf("codec: FormCodec.Decode: pair %q has no '='", pair)
		}
		decKey, err := url.QueryUnescape(key)
		if err != nil {
			return value.Value{}, fmt.Errorf("codec: FormCodec.Decode: key %q: %w", key, err)
		}
		val, err := decodeEscapedList(vals, ",", url.QueryUnescape)
		if err != nil {
			return value.Value{}, fmt.Errorf("codec: FormCodec.Decode: value %q: %w", vals, err)
		}
		entries = append(entries, value.Entry{Key: []byte(decKey), Value: val})
	}
	return value.Map(entries...), nil
}

// URLParamCodec implements the semicolon-separated URL path parameter
// format: "key=value1,value2" segments joined by ";", percent-encoded.
type URLParamCodec struct{}

func (URLParamCodec) ContentType() string { return "application/x-www-form-urlencoded; charset=utf-8" }

func (URLParamCodec) Encode(v value.Value) []byte {
	if v.Kind() != value.KindMap {
		panic(fmt.Sprintf("codec: URLParamCodec.Encode requires a Map, got %s", v.Kind()))
	}
	segments := make([]string, 0, len(v.Entries()))
	for _, e := range v.Entries() {
		key := url.QueryEscape(string(e.Key))
		vals := encodeList(e.Value, ",", url.QueryEscape)
		segments = append(segments, key+"="+vals)
	}
	return []byte(strings.Join(segments, ";"))
}

// Decode parses URL path parameters back into a submission tree, the
// inverse of Encode. It follows the split structure of the original
// url_to_dict (split on ";" for segments, "=" for the keyword, ","
// for the value list), adapted to undo percent-encoding: Encode
// escapes the keyword and every value, so Decode unescapes each part
// after splitting on the unescaped separators.
func (URLParamCodec) Decode(data []byte) (value.Value, error) {
	entries := []value.Entry{}
	if len(data) == 0 {
		return value.Map(entries...), nil
	}
	for _, segment := range strings.Split(string(data), ";") {
		keyword, vals, ok := strings.Cut(segment, "=")
		if !ok {
			return value.Value{}, fmt.Errorf("codec: URLParamCodec.Decode: segment %q has no '='", segment)
		}
		decKeyword, err := url.QueryUnescape(keyword)
		if err != nil {
			return value.Value{}, fmt.Errorf("codec: URLParamCodec.Decode: keyword %q: %w", keyword, err)
		}
		val, err := decodeEscapedList(vals, ",", url.QueryUnescape)
		if err != nil {
			return value.Value{}, fmt.Errorf("codec: URLParamCodec.Decode: value %q: %w", vals, err)
		}
		entries = append(entries, value.Entry{Key: []byte(decKeyword), Value: val})
	}
	return value.Map(entries...), nil
}
