package execution

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/domain"
)

// Params holds the pricing constants of the simulator.
type Params struct {
	CommissionRate decimal.Decimal // fraction of notional
	MinCommission  decimal.Decimal
	SizeSlippage   decimal.Decimal // added slippage per unit of size
	SlippageJitter decimal.Decimal // half-width of the uniform jitter
	MaxSlippage    decimal.Decimal
}

// DefaultParams returns the standard simulator constants.
func DefaultParams() Params {
	return Params{
		CommissionRate: decimal.RequireFromString("0.0002"),
		MinCommission:  decimal.RequireFromString("0.01"),
		SizeSlippage:   decimal.RequireFromString("0.001"),
		SlippageJitter: decimal.RequireFromString("0.0002"),
		MaxSlippage:    decimal.RequireFromString("0.01"),
	}
}

// Quote is the priced outcome of an order before admission.
type Quote struct {
	ReferencePrice decimal.Decimal
	RawFillPrice   decimal.Decimal // after spread, before slippage
	Slippage       decimal.Decimal // fraction in [0, MaxSlippage]
	FillPrice      decimal.Decimal
	Commission     decimal.Decimal
	MarginRequired decimal.Decimal
}

// Required is margin plus commission, the collateral admission checks against.
func (q Quote) Required() decimal.Decimal {
	return q.MarginRequired.Add(q.Commission)
}

// RawFillPrice prices an order against the reference price.
// Market orders pay the full spread; limit orders fill at their limit;
// stop orders fill at their stop, falling back to the reference.
func RawFillPrice(o *domain.Order, inst *domain.Instrument, ref decimal.Decimal) decimal.Decimal {
	switch o.Type {
	case domain.OrderTypeMarket:
		spread := ref.Mul(inst.BaseSpread)
		if o.Side == domain.OrderSideBuy {
			return ref.Add(spread)
		}
		return ref.Sub(spread)
	case domain.OrderTypeLimit:
		if o.Price != nil {
			return *o.Price
		}
		return ref
	case domain.OrderTypeStop, domain.OrderTypeStopLimit:
		if o.StopPrice != nil {
			return *o.StopPrice
		}
		return ref
	default:
		return ref
	}
}

// SlippageFraction returns slippage for an order. jitter is a sample in
// [0, 1) mapped onto [-SlippageJitter, +SlippageJitter).
// Limit orders never slip.
func SlippageFraction(o *domain.Order, inst *domain.Instrument, jitter float64, p Params) decimal.Decimal {
	if o.Type == domain.OrderTypeLimit {
		return decimal.Zero
	}
	noise := decimal.NewFromFloat(jitter*2 - 1).Mul(p.SlippageJitter)
	slip := inst.SlippageFactor.Add(p.SizeSlippage.Mul(o.Size)).Add(noise)
	if slip.IsNegative() {
		slip = decimal.Zero
	}
	if slip.GreaterThan(p.MaxSlippage) {
		slip = p.MaxSlippage
	}
	return slip.Round(8)
}

// ApplySlippage moves price against the taker: up for buys, down for sells.
func ApplySlippage(price, slip decimal.Decimal, side domain.OrderSide) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == domain.OrderSideBuy {
		return price.Mul(one.Add(slip))
	}
	return price.Mul(one.Sub(slip))
}

// Commission is CommissionRate of notional, floored at MinCommission.
func Commission(size, fill decimal.Decimal, p Params) decimal.Decimal {
	c := size.Mul(fill).Mul(p.CommissionRate).Round(8)
	return decimal.Max(c, p.MinCommission)
}

// MarginRequired is notional divided by leverage.
func MarginRequired(size, fill decimal.Decimal, leverage int) decimal.Decimal {
	return size.Mul(fill).Div(decimal.NewFromInt(int64(leverage))).Round(8)
}

// Price builds the full quote for an order at ref.
func Price(o *domain.Order, inst *domain.Instrument, ref decimal.Decimal, jitter float64, p Params) Quote {
	raw := RawFillPrice(o, inst, ref)
	slip := SlippageFraction(o, inst, jitter, p)
	fill := ApplySlippage(raw, slip, o.Side).Round(8)
	return Quote{
		ReferencePrice: ref,
		RawFillPrice:   raw,
		Slippage:       slip,
		FillPrice:      fill,
		Commission:     Commission(o.Size, fill, p),
		MarginRequired: MarginRequired(o.Size, fill, o.Leverage),
	}
}
