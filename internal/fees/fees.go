package fees

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/routerdeploy/internal/errors"
	"github.com/shopspring/decimal"
)

// TradeType tags a fee rate charged by the Router.
type TradeType string

const (
	TradeFast   TradeType = "fast_trade"
	TradeSniper TradeType = "sniper"
	TradeLimit  TradeType = "limit"
)

// TradeTypes lists every tag the Router constructor takes a rate for, in
// constructor order.
func TradeTypes() []TradeType {
	return []TradeType{TradeFast, TradeSniper, TradeLimit}
}

func (t TradeType) Known() bool {
	switch t {
	case TradeFast, TradeSniper, TradeLimit:
		return true
	default:
		return false
	}
}

// FeeConfig is the fee policy applied by one Router deployment. Rates are
// expressed against BaseBps, so a rate of BaseBps would be a 100% fee.
type FeeConfig struct {
	Recipient common.Address      `json:"recipient"`
	RatesBps  map[TradeType]int64 `json:"rates_bps"`
	BaseBps   int64               `json:"base_bps"`
}

// Clone returns a deep copy so callers cannot share the rates map.
func (c FeeConfig) Clone() FeeConfig {
	out := FeeConfig{Recipient: c.Recipient, BaseBps: c.BaseBps}
	if c.RatesBps != nil {
		out.RatesBps = make(map[TradeType]int64, len(c.RatesBps))
		for k, v := range c.RatesBps {
			out.RatesBps[k] = v
		}
	}
	return out
}

// SortedTags returns the configured tags in lexical order.
func (c FeeConfig) SortedTags() []TradeType {
	tags := make([]TradeType, 0, len(c.RatesBps))
	for tag := range c.RatesBps {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Percent renders a rate as a percentage of the base, e.g. 2/10000 -> 0.02.
func (c FeeConfig) Percent(tag TradeType) decimal.Decimal {
	if c.BaseBps <= 0 {
		return decimal.Zero
	}
	rate := decimal.NewFromInt(c.RatesBps[tag])
	return rate.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(c.BaseBps))
}

// Validate checks the fee config and fails on the first violated rule:
// positive base, non-negative rates, rates below the base, non-zero recipient.
func Validate(c FeeConfig) error {
	if c.BaseBps <= 0 {
		return clierr.Config("fees.base_bps", fmt.Sprintf("must be positive, got %d", c.BaseBps))
	}
	tags := c.SortedTags()
	for _, tag := range tags {
		if rate := c.RatesBps[tag]; rate < 0 {
			return clierr.Config(rateField(tag), fmt.Sprintf("must not be negative, got %d", rate))
		}
	}
	for _, tag := range tags {
		if rate := c.RatesBps[tag]; rate >= c.BaseBps {
			return clierr.Config(rateField(tag), fmt.Sprintf("rate %d is not below base %d (fee >= 100%%)", rate, c.BaseBps))
		}
	}
	if c.Recipient == (common.Address{}) {
		return clierr.Config("fees.recipient", "must be a non-zero address")
	}
	return nil
}

func rateField(tag TradeType) string {
	return "fees.rates_bps." + string(tag)
}
