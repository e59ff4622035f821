package extended

import (
	"errors"
	"sync"
	"testing"

	"github.com/jameskyle/pyretic/pkg/rerr"
)

func TestEncodeAllocatesSequentially(t *testing.T) {
	c := NewCodec()

	foo, err := c.Encode(New(map[string]interface{}{"app": "foo"}))
	if err != nil {
		t.Fatalf("encode foo: %v", err)
	}
	if foo.VID != 1 || foo.PCP != 0 {
		t.Fatalf("encode foo = %+v, want {VID:1 PCP:0}", foo)
	}

	bar, err := c.Encode(New(map[string]interface{}{"app": "bar"}))
	if err != nil {
		t.Fatalf("encode bar: %v", err)
	}
	if bar.VID != 2 || bar.PCP != 0 {
		t.Fatalf("encode bar = %+v, want {VID:2 PCP:0}", bar)
	}

	fooAgain, err := c.Encode(New(map[string]interface{}{"app": "foo"}))
	if err != nil {
		t.Fatalf("re-encode foo: %v", err)
	}
	if fooAgain != foo {
		t.Fatalf("re-encode foo = %+v, want identical code %+v", fooAgain, foo)
	}

	got, err := c.Decode(bar.VID, bar.PCP)
	if err != nil {
		t.Fatalf("decode bar: %v", err)
	}
	if v, ok := got.Get("app"); !ok || v != "bar" {
		t.Fatalf("decode bar = %+v, want app=bar", got)
	}
}

func TestEncodeOrderIndependent(t *testing.T) {
	c := NewCodec()

	a, _ := c.Encode(New(map[string]interface{}{"app": "foo", "tag": "x"}))
	b, _ := c.Encode(New(map[string]interface{}{"tag": "x", "app": "foo"}))
	if a != b {
		t.Fatalf("order of map keys must not affect interning: %+v vs %+v", a, b)
	}
}

func TestDecodeUnknownCodeIsInvariantViolation(t *testing.T) {
	c := NewCodec()
	_, err := c.Decode(99, 0)
	if err == nil {
		t.Fatal("decode of unallocated code should fail")
	}
	var inv *rerr.Invariant
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want *rerr.Invariant", err)
	}
	if !errors.Is(err, rerr.ErrUnknownExtendedValueCode) {
		t.Fatalf("err = %v, want wrapping ErrUnknownExtendedValueCode", err)
	}
}

func TestEncodeOverflow(t *testing.T) {
	c := &Codec{toCode: make(map[string]Code), toValues: make(map[Code]Values)}
	c.toCode["__sentinel__"] = Code{}
	for i := 0; i < maxCode; i++ {
		c.toCode[string(rune(i))+"x"] = Code{}
	}

	_, err := c.Encode(New(map[string]interface{}{"app": "overflow"}))
	if !errors.Is(err, rerr.ErrExtendedValueOverflow) {
		t.Fatalf("err = %v, want ErrExtendedValueOverflow", err)
	}
}

func TestEncodeConcurrentSameBundle(t *testing.T) {
	c := NewCodec()
	var wg sync.WaitGroup
	codes := make([]Code, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code, err := c.Encode(New(map[string]interface{}{"app": "shared"}))
			if err != nil {
				t.Errorf("encode: %v", err)
				return
			}
			codes[i] = code
		}(i)
	}
	wg.Wait()
	for _, code := range codes {
		if code != codes[0] {
			t.Fatalf("concurrent encode of identical bundle produced divergent codes: %+v vs %+v", code, codes[0])
		}
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (single bundle interned once)", c.Len())
	}
}
