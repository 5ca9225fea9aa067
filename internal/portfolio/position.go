// Package portfolio holds the two-asset balance of one simulated strategy and
// the per-pair trade statistics derived from its buy/sell events.
package portfolio

import (
	"errors"
	"fmt"

	"macross/internal/model"
)

var (
	// ErrInvalidPrice is returned for non-positive conversion prices.
	ErrInvalidPrice = errors.New("invalid conversion price")
	// ErrEmptyBalance is returned when the source asset of a conversion is zero.
	ErrEmptyBalance = errors.New("nothing to convert")
)

// Position is a full-balance two-asset position: A is the quote asset the
// principal starts in, B the traded asset. After the first trade exactly one
// of them is non-zero.
type Position struct {
	A float64 `json:"a"`
	B float64 `json:"b"`

	Trades int `json:"trades"`
}

// NewPosition starts with principal in asset A.
func NewPosition(principal float64) *Position {
	return &Position{A: principal}
}

// HoldingA reports whether the position can buy.
func (p *Position) HoldingA() bool { return p.A > 0 }

// HoldingB reports whether the position can sell.
func (p *Position) HoldingB() bool { return p.B > 0 }

// Buy converts all of A into B at price, deducting fee from the B received.
func (p *Position) Buy(t int64, price, fee float64) (model.TradeEvent, error) {
	if price <= 0 {
		return model.TradeEvent{}, fmt.Errorf("%w: %g", ErrInvalidPrice, price)
	}
	if p.A <= 0 {
		return model.TradeEvent{}, fmt.Errorf("buy: %w", ErrEmptyBalance)
	}
	p.B = p.A / price
	p.B -= p.B * fee
	p.A = 0
	p.Trades++
	return model.TradeEvent{Kind: model.SideBuy, Time: t, Price: price, Sum: p.B}, nil
}

// Sell converts all of B into A at price, deducting fee from the A received.
func (p *Position) Sell(t int64, price, fee float64) (model.TradeEvent, error) {
	if price <= 0 {
		return model.TradeEvent{}, fmt.Errorf("%w: %g", ErrInvalidPrice, price)
	}
	if p.B <= 0 {
		return model.TradeEvent{}, fmt.Errorf("sell: %w", ErrEmptyBalance)
	}
	p.A = p.B * price
	p.A -= p.A * fee
	p.B = 0
	p.Trades++
	return model.TradeEvent{Kind: model.SideSell, Time: t, Price: price, Sum: p.A}, nil
}

// Value is the position marked to price in units of A.
func (p *Position) Value(price float64) float64 {
	return p.A + p.B*price
}
