package sale

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// PriceFeed supplies the external usd-per-native quote, scaled so that the
// native unit times the price divided by 1e26 yields whole USD units.
type PriceFeed interface {
	LatestPrice() (*big.Int, error)
}

var (
	// nativeUnit is the wei-style base unit of the contribution currency.
	nativeUnit = mustUint256("1000000000000000000")
	// feedDivisor normalises feed-mode products back to USD units.
	feedDivisor = mustUint256("100000000000000000000000000")
	// fallbackDivisor converts native amounts to USD when no price source
	// is configured.
	fallbackDivisor = mustUint256("1000000000000000")
)

func mustUint256(dec string) *uint256.Int {
	v, err := uint256.FromDecimal(dec)
	if err != nil {
		panic(err)
	}
	return v
}

// Quote is the priced outcome of a native contribution.
type Quote struct {
	NativeAmount *big.Int
	UsdAmount    *big.Int
	TokenAmount  *big.Int
}

// Mode names the active conversion mode.
func (c *PricingConfig) Mode() string {
	switch {
	case c == nil:
		return "fallback"
	case c.UseManualPrice:
		return "manual"
	case c.UseExternalFeed:
		return "feed"
	default:
		return "fallback"
	}
}

// computeQuote converts a native contribution into USD and token amounts
// under the configured mode. All intermediate math runs on 256-bit words;
// any overflow aborts the quote rather than wrapping.
func computeQuote(cfg *PricingConfig, feed PriceFeed, native *big.Int) (*Quote, error) {
	if cfg == nil {
		return nil, ErrSaleNotConfigured
	}
	if native == nil || native.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	amount, overflow := uint256.FromBig(native)
	if overflow {
		return nil, ErrAmountOverflow
	}
	usd, err := usdValue(cfg, feed, amount)
	if err != nil {
		return nil, err
	}
	rate, overflow := uint256.FromBig(cfg.TokenPerUsd)
	if overflow {
		return nil, ErrAmountOverflow
	}
	tokens, overflow := new(uint256.Int).MulOverflow(usd, rate)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return &Quote{
		NativeAmount: new(big.Int).Set(native),
		UsdAmount:    usd.ToBig(),
		TokenAmount:  tokens.ToBig(),
	}, nil
}

func usdValue(cfg *PricingConfig, feed PriceFeed, amount *uint256.Int) (*uint256.Int, error) {
	switch {
	case cfg.UseManualPrice:
		price, overflow := uint256.FromBig(cfg.ManualPrice)
		if overflow {
			return nil, ErrAmountOverflow
		}
		return mulDiv(amount, price, nativeUnit)
	case cfg.UseExternalFeed:
		if feed == nil {
			return nil, ErrOracleUnavailable
		}
		raw, err := feed.LatestPrice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		if raw == nil || raw.Sign() <= 0 {
			return nil, ErrInvalidPrice
		}
		price, overflow := uint256.FromBig(raw)
		if overflow {
			return nil, ErrAmountOverflow
		}
		return mulDiv(amount, price, feedDivisor)
	default:
		return new(uint256.Int).Div(amount, fallbackDivisor), nil
	}
}

func mulDiv(a, b, divisor *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return new(uint256.Int).Div(product, divisor), nil
}
