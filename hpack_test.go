package http2

import (
	"testing"
)

func TestHPACKRoundTrip(t *testing.T) {
	enc := AcquireHPACK()
	dec := AcquireHPACK()
	defer ReleaseHPACK(enc)
	defer ReleaseHPACK(dec)

	fields := map[string]string{
		":status":       "200",
		"content-type":  "text/plain",
		"cache-control": "private",
	}

	var raw []byte
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	for k, v := range fields {
		hf.Set(k, v)
		raw = enc.AppendHeader(raw, hf, true)
	}

	got := map[string]string{}
	for len(raw) > 0 {
		var err error
		raw, err = dec.Next(hf, raw)
		if err != nil {
			t.Fatalf("Next: %s", err)
		}
		got[hf.Key()] = hf.Value()
	}

	for k, v := range fields {
		if got[k] != v {
			t.Fatalf("field %s: got %q, expected %q", k, got[k], v)
		}
	}
}

func TestHPACKContinuationAcrossFrames(t *testing.T) {
	enc := AcquireHPACK()
	dec := AcquireHPACK()
	defer ReleaseHPACK(enc)
	defer ReleaseHPACK(dec)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	hf.Set(":path", "/index")
	raw := enc.AppendHeader(nil, hf, true)

	if len(raw) < 2 {
		t.Fatalf("expected encoded field to span multiple bytes, got %d", len(raw))
	}

	first, second := raw[:len(raw)-1], raw[len(raw)-1:]

	b, err := dec.Next(hf, first)
	if err != ErrUnexpectedSize {
		t.Fatalf("expected ErrUnexpectedSize on a truncated field, got %v", err)
	}
	_ = b

	rest, err := dec.Next(hf, second)
	if err != nil {
		t.Fatalf("Next after continuation: %s", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no bytes left, got %d", len(rest))
	}

	if hf.Key() != ":path" || hf.Value() != "/index" {
		t.Fatalf("unexpected field: %s=%s", hf.Key(), hf.Value())
	}
}

func TestHPACKTableSize(t *testing.T) {
	hp := AcquireHPACK()
	defer ReleaseHPACK(hp)

	hp.SetMaxTableSize(128)
}
