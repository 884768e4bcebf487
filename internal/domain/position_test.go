package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newLong(size, entry, margin string) *Position {
	return NewPosition("p1", "a1", "i1", PositionSideLong, d(size), d(entry), 10, d(margin), time.Unix(0, 0))
}

func TestPosition_MarkToMarket(t *testing.T) {
	p := newLong("1", "50000", "5000")
	p.MarkToMarket(d("50500"))

	if !p.UnrealizedPnL.Equal(d("500")) {
		t.Errorf("UnrealizedPnL = %s, want 500", p.UnrealizedPnL)
	}
	if !p.CurrentPrice.Equal(d("50500")) {
		t.Errorf("CurrentPrice = %s, want 50500", p.CurrentPrice)
	}

	short := NewPosition("p2", "a1", "i1", PositionSideShort, d("2"), d("100"), 5, d("40"), time.Unix(0, 0))
	short.MarkToMarket(d("90"))
	if !short.UnrealizedPnL.Equal(d("20")) {
		t.Errorf("short UnrealizedPnL = %s, want 20", short.UnrealizedPnL)
	}
}

func TestPosition_MarkToMarket_ClosedIsNoop(t *testing.T) {
	p := newLong("1", "100", "10")
	if _, err := p.Close(d("1"), d("110"), time.Unix(1, 0)); err != nil {
		t.Fatalf("Close: %v", err)
	}
	p.MarkToMarket(d("200"))
	if !p.CurrentPrice.Equal(d("110")) || !p.UnrealizedPnL.IsZero() {
		t.Errorf("closed position mutated: price=%s unrealized=%s", p.CurrentPrice, p.UnrealizedPnL)
	}
}

func TestPosition_FullClose(t *testing.T) {
	p := newLong("1", "50000", "5000")
	p.MarkToMarket(d("50500"))
	before := p.UnrealizedPnL

	out, err := p.Close(d("1"), d("50500"), time.Unix(10, 0))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !out.FullyClosed {
		t.Error("expected FullyClosed")
	}
	if p.IsOpen {
		t.Error("expected position closed")
	}
	if !p.UnrealizedPnL.IsZero() {
		t.Errorf("UnrealizedPnL = %s, want 0", p.UnrealizedPnL)
	}
	if !p.RealizedPnL.Equal(before) {
		t.Errorf("RealizedPnL = %s, want %s", p.RealizedPnL, before)
	}
	if !out.MarginRelease.Equal(d("5000")) {
		t.Errorf("MarginRelease = %s, want 5000", out.MarginRelease)
	}
	if p.ClosedAt == nil {
		t.Error("ClosedAt not stamped")
	}

	if _, err := p.Close(d("1"), d("50500"), time.Unix(11, 0)); !errors.Is(err, ErrPositionClosed) {
		t.Errorf("second Close err = %v, want ErrPositionClosed", err)
	}
}

func TestPosition_OversizedCloseIsFull(t *testing.T) {
	p := newLong("1", "100", "10")
	out, err := p.Close(d("3"), d("90"), time.Unix(1, 0))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !out.FullyClosed || !out.ClosedSize.Equal(d("1")) {
		t.Errorf("got FullyClosed=%v ClosedSize=%s", out.FullyClosed, out.ClosedSize)
	}
	if !out.RealizedDelta.Equal(d("-10")) {
		t.Errorf("RealizedDelta = %s, want -10", out.RealizedDelta)
	}
}

func TestPosition_PartialClose(t *testing.T) {
	p := newLong("4", "100", "40")

	out, err := p.Close(d("1"), d("110"), time.Unix(1, 0))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if out.FullyClosed || !p.IsOpen {
		t.Fatal("expected position to stay open")
	}
	if !p.Size.Equal(d("3")) {
		t.Errorf("Size = %s, want 3", p.Size)
	}
	if !out.RealizedDelta.Equal(d("10")) {
		t.Errorf("RealizedDelta = %s, want 10", out.RealizedDelta)
	}
	if !out.MarginRelease.Equal(d("10")) || !p.MarginUsed.Equal(d("30")) {
		t.Errorf("MarginRelease = %s MarginUsed = %s, want 10 and 30", out.MarginRelease, p.MarginUsed)
	}
	if !p.UnrealizedPnL.Equal(d("30")) {
		t.Errorf("UnrealizedPnL = %s, want 30", p.UnrealizedPnL)
	}
}

func TestPosition_PartialClosesSumToFullClose(t *testing.T) {
	full := newLong("3", "100", "30")
	fullOut, err := full.Close(d("3"), d("107.5"), time.Unix(1, 0))
	if err != nil {
		t.Fatalf("Close: %v", err)
	}

	p := newLong("3", "100", "30")
	sum := decimal.Zero
	for _, size := range []string{"0.7", "1.3", "1"} {
		out, err := p.Close(d(size), d("107.5"), time.Unix(1, 0))
		if err != nil {
			t.Fatalf("Close(%s): %v", size, err)
		}
		sum = sum.Add(out.RealizedDelta)
	}

	if p.IsOpen {
		t.Error("expected last partial close to close the position")
	}
	if !sum.Equal(fullOut.RealizedDelta) {
		t.Errorf("sum of partial deltas = %s, want %s", sum, fullOut.RealizedDelta)
	}
	if !p.RealizedPnL.Equal(full.RealizedPnL) {
		t.Errorf("RealizedPnL = %s, want %s", p.RealizedPnL, full.RealizedPnL)
	}
}

func TestPosition_FullCloseAfterPartialKeepsEarlierRealized(t *testing.T) {
	p := newLong("3", "100", "30")
	if _, err := p.Close(d("1"), d("110"), time.Unix(1, 0)); err != nil {
		t.Fatalf("partial Close: %v", err)
	}

	out, err := p.Close(d("2"), d("120"), time.Unix(2, 0))
	if err != nil {
		t.Fatalf("full Close: %v", err)
	}
	if !out.FullyClosed {
		t.Fatal("expected FullyClosed")
	}
	// The final close books only the remaining unrealized P&L.
	if !out.RealizedDelta.Equal(d("40")) {
		t.Errorf("RealizedDelta = %s, want 40", out.RealizedDelta)
	}
	if !p.RealizedPnL.Equal(d("50")) {
		t.Errorf("RealizedPnL = %s, want 50", p.RealizedPnL)
	}
}

func TestPosition_InvalidCloseSize(t *testing.T) {
	p := newLong("1", "100", "10")
	for _, size := range []string{"0", "-1"} {
		if _, err := p.Close(d(size), d("100"), time.Unix(1, 0)); !errors.Is(err, ErrInvalidCloseSize) {
			t.Errorf("Close(%s) err = %v, want ErrInvalidCloseSize", size, err)
		}
	}
}

func TestPosition_Triggers(t *testing.T) {
	sl, tp := d("95"), d("110")

	long := newLong("1", "100", "10")
	long.StopLoss, long.TakeProfit = &sl, &tp
	if !long.StopLossHit(d("95")) || long.StopLossHit(d("96")) {
		t.Error("long stop-loss predicate wrong")
	}
	if !long.TakeProfitHit(d("110")) || long.TakeProfitHit(d("109")) {
		t.Error("long take-profit predicate wrong")
	}

	ssl, stp := d("105"), d("90")
	short := NewPosition("p2", "a1", "i1", PositionSideShort, d("1"), d("100"), 10, d("10"), time.Unix(0, 0))
	short.StopLoss, short.TakeProfit = &ssl, &stp
	if !short.StopLossHit(d("105")) || short.StopLossHit(d("104")) {
		t.Error("short stop-loss predicate wrong")
	}
	if !short.TakeProfitHit(d("90")) || short.TakeProfitHit(d("91")) {
		t.Error("short take-profit predicate wrong")
	}
}
