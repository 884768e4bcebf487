package id

import (
	"testing"
	"time"
)

func TestNew_Monotonic(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("id %q not greater than %q", next, prev)
		}
		prev = next
	}
}

func TestNew_Length(t *testing.T) {
	if got := len(New()); got != 26 {
		t.Errorf("len(New()) = %d, want 26", got)
	}
}

func TestDeterministic(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{"single", []string{"BTC-USD"}},
		{"multiple", []string{"instrument", "ETH-USD"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deterministic(tt.parts...)
			if len(got) != 64 {
				t.Errorf("Deterministic() length = %d, want 64", len(got))
			}
			if again := Deterministic(tt.parts...); again != got {
				t.Errorf("Deterministic() not stable: %s != %s", again, got)
			}
		})
	}

	if Deterministic("a", "b") == Deterministic("b", "a") {
		t.Error("Deterministic() must depend on part order")
	}
}

func TestInstrumentID_CaseInsensitive(t *testing.T) {
	if InstrumentID("btc-usd") != InstrumentID("BTC-USD") {
		t.Error("InstrumentID must ignore symbol case")
	}
}
