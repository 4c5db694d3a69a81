package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/cw-faucet/faucetd/types"
)

// ReadableAmount formats a base-unit amount as a decimal number with at most
// 3 fractional digits, truncated (not rounded), suffixed with the token
// symbol. Pure; safe on a nil amount.
func (m *Manager) ReadableAmount(amount *types.BigInt) string {
	if amount == nil {
		amount = types.NewBigInt(0)
	}
	return FormatAmount(amount, m.cfg.Decimals, m.cfg.Symbol)
}

// FormatAmount is the formatting core of ReadableAmount, usable without a
// Manager.
func FormatAmount(amount *types.BigInt, decimals uint, symbol string) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, rem := new(big.Int).QuoRem(amount.MathBigInt(), scale, new(big.Int))
	rem.Abs(rem)

	// Scale the remainder to exactly 3 fractional digits, truncating.
	var frac *big.Int
	if decimals > 3 {
		frac = new(big.Int).Quo(rem, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-3)), nil))
	} else {
		frac = new(big.Int).Mul(rem, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(3-decimals)), nil))
	}

	s := whole.String()
	if frac.Sign() != 0 {
		fs := strings.TrimRight(fmt.Sprintf("%03d", frac.Int64()), "0")
		s += "." + fs
	}
	return s + " " + symbol
}
