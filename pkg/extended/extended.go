// Package extended implements the bijective mapping between opaque
// user-defined packet metadata bundles and (vlan_id, vlan_pcp) pairs, so
// that metadata survives a round-trip through a switch that only
// understands L2-L4 headers.
package extended

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jameskyle/pyretic/pkg/rerr"
)

// maxCode is the largest value representable in the 15-bit combined
// (pcp<<12 | vid) space: vlan_pcp occupies 3 bits, vlan_id 12 bits.
const maxCode = 0b111_111_111_111_111

// Values is an immutable, ordered-by-key bundle of user-defined packet
// metadata. Equality and hashing are structural: two Values built from the
// same key/value entries are equal regardless of construction order.
type Values struct {
	entries map[string]interface{}
	key     string // memoized canonical key, used for map lookups
}

// New builds a Values bundle from a plain map. The map is copied; the
// original is not retained.
func New(m map[string]interface{}) Values {
	cp := make(map[string]interface{}, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Values{entries: cp, key: canonicalKey(cp)}
}

// Empty reports whether the bundle has no entries.
func (v Values) Empty() bool { return len(v.entries) == 0 }

// Len reports the number of entries in the bundle.
func (v Values) Len() int { return len(v.entries) }

// Get returns the value for key and whether it was present.
func (v Values) Get(key string) (interface{}, bool) {
	val, ok := v.entries[key]
	return val, ok
}

// Map returns a copy of the underlying entries, safe for the caller to
// mutate.
func (v Values) Map() map[string]interface{} {
	cp := make(map[string]interface{}, len(v.entries))
	for k, val := range v.entries {
		cp[k] = val
	}
	return cp
}

func canonicalKey(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(toComparable(m[k]))
		b.WriteByte(';')
	}
	return b.String()
}

func toComparable(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

// Code is the (vlan_id, vlan_pcp) pair a Values bundle is interned to.
type Code struct {
	VID uint16
	PCP uint16
}

// Codec is the process-wide extended-values database described in §3/§4.1.
// Both directions are served by the same mutex; entries are never evicted.
type Codec struct {
	mu       sync.Mutex
	toCode   map[string]Code // canonical key -> code
	toValues map[Code]Values // code -> bundle
}

// NewCodec creates an empty codec.
func NewCodec() *Codec {
	return &Codec{
		toCode:   make(map[string]Code),
		toValues: make(map[Code]Values),
	}
}

// Encode interns ev, returning its existing code if already interned or
// allocating the next code per r = 1 + |db|, pcp = (r & 0b111_000_000_000_000) >> 12,
// vid = r & 0b000_111_111_111_111. vlan id 0 is reserved and never issued.
// Returns ErrExtendedValueOverflow once the 15-bit code space is exhausted;
// codec state is unchanged on overflow.
func (c *Codec) Encode(ev Values) (Code, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if code, ok := c.toCode[ev.key]; ok {
		return code, nil
	}

	r := 1 + len(c.toCode)
	if r > maxCode {
		return Code{}, rerr.ErrExtendedValueOverflow
	}
	code := Code{
		PCP: uint16(r&0b111_000_000_000_000) >> 12,
		VID: uint16(r & 0b000_111_111_111_111),
	}
	c.toCode[ev.key] = code
	c.toValues[code] = ev
	return code, nil
}

// Decode looks up the bundle previously interned under (vid,pcp). Decoding
// a code this codec never issued is a fatal invariant violation (§7): the
// controller may not see a VLAN it did not assign.
func (c *Codec) Decode(vid, pcp uint16) (Values, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev, ok := c.toValues[Code{VID: vid, PCP: pcp}]
	if !ok {
		return Values{}, rerr.NewInvariant("decode of unallocated vlan code", rerr.ErrUnknownExtendedValueCode)
	}
	return ev, nil
}

// Len reports how many bundles have been interned so far.
func (c *Codec) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.toCode)
}
