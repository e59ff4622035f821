package packet

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jameskyle/pyretic/pkg/extended"
	"github.com/jameskyle/pyretic/pkg/rerr"
)

// Packet is the user-facing view a Policy evaluates against. Headers never
// contains vlan_id/vlan_pcp: that state is exposed only through Values.
type Packet struct {
	Headers map[string]interface{}
	Values  extended.Values
}

// Get returns a header value and whether it was present.
func (p Packet) Get(header string) (interface{}, bool) {
	v, ok := p.Headers[header]
	return v, ok
}

// With returns a copy of p with header set to value. Packets are treated as
// immutable by policies; mutation always goes through With.
func (p Packet) With(header string, value interface{}) Packet {
	cp := make(map[string]interface{}, len(p.Headers)+1)
	for k, v := range p.Headers {
		cp[k] = v
	}
	cp[header] = value
	return Packet{Headers: cp, Values: p.Values}
}

// WithValues returns a copy of p carrying a new extended-values bundle.
func (p Packet) WithValues(v extended.Values) Packet {
	return Packet{Headers: p.Headers, Values: v}
}

// Translator converts between the switch-native ConcretePacket and the
// user-facing Packet, interning and recovering extended values through a
// shared Codec (§4.1, §4.2). A Translator memoizes the extended-values
// lookup by packet identity so that evaluating the same packet-in against
// many policy branches does not re-decode the vlan tag repeatedly.
type Translator struct {
	codec *extended.Codec

	mu    sync.Mutex
	cache map[string]extended.Values
}

// NewTranslator builds a Translator backed by codec.
func NewTranslator(codec *extended.Codec) *Translator {
	return &Translator{
		codec: codec,
		cache: make(map[string]extended.Values),
	}
}

// ToUser converts a switch packet-in into the Packet a policy evaluates.
// vlan_id/vlan_pcp are decoded into extended values and removed from the
// header view; every other native header passes through unchanged.
func (t *Translator) ToUser(c ConcretePacket) (Packet, error) {
	vid, pcp := vlanOf(c)

	ev, err := t.extendedValuesFrom(c, vid, pcp)
	if err != nil {
		return Packet{}, err
	}

	headers := make(map[string]interface{}, len(c))
	for k, v := range c {
		if k == HeaderVlanID || k == HeaderVlanPCP {
			continue
		}
		headers[k] = v
	}

	return Packet{Headers: headers, Values: ev}, nil
}

// ToConcrete converts a user Packet back into wire form, interning its
// extended values into a vlan_id/vlan_pcp pair via the codec.
func (t *Translator) ToConcrete(p Packet) (ConcretePacket, error) {
	c := make(ConcretePacket, len(p.Headers)+2)
	for k, v := range p.Headers {
		c[k] = v
	}

	if p.Values.Empty() {
		c[HeaderVlanID] = uint16(0)
		c[HeaderVlanPCP] = uint16(0)
		return c, nil
	}

	code, err := t.codec.Encode(p.Values)
	if err != nil {
		return nil, err
	}
	c[HeaderVlanID] = code.VID
	c[HeaderVlanPCP] = code.PCP
	return c, nil
}

// extendedValuesFrom decodes (vid,pcp) into a Values bundle, memoized by the
// packet's identity headers so repeated lookups for the same packet-in
// across many policy branches hit the cache rather than the codec mutex.
func (t *Translator) extendedValuesFrom(c ConcretePacket, vid, pcp uint16) (extended.Values, error) {
	if vid == 0 && pcp == 0 {
		return extended.Values{}, nil
	}

	key := identityKey(c, vid, pcp)

	t.mu.Lock()
	if ev, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return ev, nil
	}
	t.mu.Unlock()

	ev, err := t.codec.Decode(vid, pcp)
	if err != nil {
		return extended.Values{}, fmt.Errorf("translate packet-in: %w", err)
	}

	t.mu.Lock()
	t.cache[key] = ev
	t.mu.Unlock()

	return ev, nil
}

func vlanOf(c ConcretePacket) (vid, pcp uint16) {
	if v, ok := c[HeaderVlanID]; ok {
		vid = toUint16(v)
	}
	if v, ok := c[HeaderVlanPCP]; ok {
		pcp = toUint16(v)
	}
	return vid, pcp
}

func toUint16(v interface{}) uint16 {
	switch t := v.(type) {
	case uint16:
		return t
	case int:
		return uint16(t)
	case uint32:
		return uint16(t)
	case int64:
		return uint16(t)
	default:
		return 0
	}
}

func identityKey(c ConcretePacket, vid, pcp uint16) string {
	var b strings.Builder
	headers := append([]string(nil), identityHeaders...)
	sort.Strings(headers)
	for _, h := range headers {
		fmt.Fprintf(&b, "%s=%v;", h, c[h])
	}
	fmt.Fprintf(&b, "vid=%d;pcp=%d", vid, pcp)
	return b.String()
}

// ErrMissingRequiredHeader reports that a header translation assumed present
// was absent. Kept for callers that want to distinguish malformed
// packet-ins from other invariant violations.
var ErrMissingRequiredHeader = rerr.NewInvariant("missing required header", nil)
