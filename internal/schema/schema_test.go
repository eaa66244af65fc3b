package schema

import "testing"

func TestParseScaled(t *testing.T) {
	cases := []struct {
		in    string
		scale Scale
		want  int64
	}{
		{"2650.45", 2, 265045},
		{"2650.45", 4, 26504500},
		{"0.001", 3, 1},
		{"0.0019", 3, 1},
		{"-12.5", 2, -1250},
		{"100", 0, 100},
		{".5", 1, 5},
	}
	for _, c := range cases {
		got, err := ParseScaled(c.in, c.scale)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parse %q scale %d: got %d want %d", c.in, c.scale, got, c.want)
		}
	}
}

func TestParseScaledRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3"} {
		if _, err := ParseScaled(in, 2); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestFormatScaled(t *testing.T) {
	if got := FormatScaled(265045, 2); got != "2650.45" {
		t.Fatalf("format: got %s", got)
	}
	if got := FormatScaled(-1250, 2); got != "-12.50" {
		t.Fatalf("format negative: got %s", got)
	}
	if got := FormatScaled(5, 3); got != "0.005" {
		t.Fatalf("format small: got %s", got)
	}
	if got := FormatScaled(100, 0); got != "100" {
		t.Fatalf("format zero scale: got %s", got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 265045, 99999999} {
		s := FormatScaled(v, 4)
		back, err := ParseScaled(s, 4)
		if err != nil {
			t.Fatalf("round trip %d: %v", v, err)
		}
		if back != v {
			t.Fatalf("round trip %d: got %d", v, back)
		}
	}
}

func TestNotionalValue(t *testing.T) {
	spec := ScaleSpec{PriceScale: 2, QuantityScale: 3}

	// price 100.00, qty 0.500 -> notional 50.0000 in quote scale 4
	n, overflow := NotionalValue(Price(10000), Quantity(500), spec)
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if n != 500000 {
		t.Fatalf("notional: got %d want 500000", n)
	}

	_, overflow = NotionalValue(Price(maxInt64), Quantity(2), spec)
	if !overflow {
		t.Fatal("expected overflow")
	}

	n, overflow = NotionalValue(Price(10000), Quantity(-500), spec)
	if overflow || n != -500000 {
		t.Fatalf("signed notional: got %d overflow %v", n, overflow)
	}

	// shift already matches quote scale
	n, overflow = NotionalValue(Price(100), Quantity(25), ScaleSpec{PriceScale: 2, QuantityScale: 2})
	if overflow || n != 2500 {
		t.Fatalf("flat scale notional: got %d overflow %v", n, overflow)
	}
}
