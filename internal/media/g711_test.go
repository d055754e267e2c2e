package media

import "testing"

func TestUlawRoundTripWithinQuantization(t *testing.T) {
	for _, s := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 32000, -32000} {
		got := DecodeUlaw(EncodeUlaw(s))
		diff := int(got) - int(s)
		if diff < 0 {
			diff = -diff
		}
		limit := int(s)
		if limit < 0 {
			limit = -limit
		}
		limit = limit/16 + 8
		if diff > limit {
			t.Errorf("ulaw %d -> %d, diff %d > %d", s, got, diff, limit)
		}
	}
}

func TestAlawRoundTripWithinQuantization(t *testing.T) {
	for _, s := range []int16{0, 16, -16, 500, -500, 4000, -4000, 30000, -30000} {
		got := DecodeAlaw(EncodeAlaw(s))
		diff := int(got) - int(s)
		if diff < 0 {
			diff = -diff
		}
		limit := int(s)
		if limit < 0 {
			limit = -limit
		}
		limit = limit/16 + 16
		if diff > limit {
			t.Errorf("alaw %d -> %d, diff %d > %d", s, got, diff, limit)
		}
	}
}

func TestUlawSilence(t *testing.T) {
	if b := EncodeUlaw(0); b != 0xFF {
		t.Fatalf("EncodeUlaw(0) = %#x, want 0xff", b)
	}
	if s := DecodeUlaw(0xFF); s != 0 {
		t.Fatalf("DecodeUlaw(0xff) = %d, want 0", s)
	}
}

func TestUlawMonotonic(t *testing.T) {
	prev := DecodeUlaw(EncodeUlaw(-32768))
	for s := -32768; s <= 32767; s += 97 {
		got := DecodeUlaw(EncodeUlaw(int16(s)))
		if got < prev {
			t.Fatalf("not monotonic at %d: %d < %d", s, got, prev)
		}
		prev = got
	}
}
