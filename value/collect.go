package value

// Values is the result of walking a submission tree and bucketing
// its leaves by the key they appear directly under.
//
// The original design overloads a "null key" both as the catch-all
// bucket and as the walker's initial target. Null is kept as a
// dedicated field here instead: observable behavior is unchanged
// (every leaf still lands in the catch-all bucket and, when directly
// under a key, in that key's bucket too), but a real zero-length key
// can no longer collide with the catch-all.
type Values struct {
	// Keys lists the map keys seen, in first-seen order.
	Keys []string
	// ByKey holds the leaves seen directly under each key (a key's
	// bucket includes leaves under that key even when the key's
	// value is, or contains, a sequence: sequences don't change the
	// current key as the walk descends into their elements).
	ByKey map[string][]Value
	// Null is the union of every leaf in the tree, used as the
	// fallback whenever a key-specific bucket would otherwise be
	// empty.
	Null []Value
}

// Collect walks one or more submission trees and returns their
// combined Values. Multiple trees are merged by concatenating their
// per-key and catch-all buckets in argument order; this is what lets
// a pipeline collect leaves across several valid sample submissions
// for a single scenario.
func Collect(trees ...Value) *Values {
	c := &Values{ByKey: make(map[string][]Value)}
	for _, t := range trees {
		c.walk(t, nil)
	}
	return c
}

func (c *Values) walk(v Value, key *string) {
	switch v.Kind() {
	case KindMap:
		for _, e := range v.Entries() {
			k := string(e.Key)
			c.walk(e.Value, &k)
		}
	case KindSeq:
		for _, e := range v.Elems() {
			c.walk(e, key)
		}
	default: // leaf: Null, Bool, Int, Float, or Bytes
		c.Null = append(c.Null, v)
		if key != nil {
			if _, ok := c.ByKey[*key]; !ok {
				c.Keys = append(c.Keys, *key)
			}
			c.ByKey[*key] = append(c.ByKey[*key], v)
		}
	}
}

// Bucket returns the leaves collected for key, falling back to the
// catch-all bucket when key's own bucket is empty or unseen. This is
// the "if its bucket is empty use the null-key bucket" rule the
// mutator and injector both need.
func (c *Values) Bucket(key string) []Value {
	if vs, ok := c.ByKey[key]; ok && len(vs) > 0 {
		return vs
	}
	return c.Null
}
