// Package inject implements the anomaly injector: it walks a template
// submission and produces derivative submissions where exactly one
// key or one leaf has been replaced with an anomaly.
package inject

import (
	"unicode/utf8"

	"github.com/WithSecureOpenSource/mittn/value"
)

// AnomalyMap is the {key -> anomaly} selection for one round of
// injection, with a wildcard under the null key, per the anomaly
// engine's data model.
type AnomalyMap struct {
	// ByKey holds anomalies for specific keys.
	ByKey map[string]value.Value
	// Null is the wildcard anomaly, used for leaves under keys with
	// no specific entry, and always used for key renames regardless
	// of which key is being renamed.
	Null value.Value
}

// For returns the anomaly to inject for a leaf found under key (nil
// for a leaf with no enclosing key), falling back to the wildcard.
func (m AnomalyMap) For(key *string) value.Value {
	if key != nil {
		if v, ok := m.ByKey[*key]; ok {
			return v
		}
	}
	return m.Null
}

// renamedKey renders the wildcard anomaly as a map key. If the
// rendered bytes aren't valid as text, the literal two-byte sequence
// 0xFF 0xFF is substituted, matching the original's fallback for a
// key that was too broken to encode.
func renamedKey(anomaly value.Value) []byte {
	s := value.Stringify(anomaly)
	if anomaly.Kind() == value.KindBytes && !utf8.Valid(s) {
		return []byte{0xFF, 0xFF}
	}
	return s
}

// Derive produces every derivative of tmpl for one anomaly map: for
// every mapping key, a derivative with that key renamed; for every
// leaf, a derivative with that leaf replaced. The input tree is never
// mutated; derivatives share every subtree they didn't change.
//
// For a tree with M mapping keys and L leaves, Derive returns exactly
// M+L values, and each differs from tmpl at exactly one position.
func Derive(tmpl value.Value, anomalies AnomalyMap) []value.Value {
	return walk(tmpl, nil, anomalies)
}

func walk(v value.Value, key *string, anomalies AnomalyMap) []value.Value {
	switch v.Kind() {
	case value.KindMap:
		entries := v.Entries()
		out := make([]value.Value, 0, len(entries)*2)

		// One derivative per key, with that key renamed and its
		// value left untouched.
		nk := renamedKey(anomalies.Null)
		for i := range entries {
			out = append(out, v.WithMapKeyRenamed(i, nk))
		}

		// For every entry, recurse into its value and splice each
		// sub-derivative back in under the same key.
		for i, e := range entries {
			k := string(e.Key)
			for _, sub := range walk(e.Value, &k, anomalies) {
				out = append(out, v.WithMapEntry(i, sub))
			}
		}
		return out

	case value.KindSeq:
		elems := v.Elems()
		out := make([]value.Value, 0, len(elems))
		for i := range elems {
			for _, sub := range walk(elems[i], key, anomalies) {
				out = append(out, v.WithSeqElem(i, sub))
			}
		}
		return out

	default: // leaf
		return []value.Value{anomalies.For(key)}
	}
}
