package detector

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	hundred = big.NewInt(100)
	half    = big.NewRat(1, 2)
)

// formatGwei renders wei in gwei without trailing zeros but with at least
// one decimal, e.g. "30.0" or "1.25".
func formatGwei(wei *big.Int) string {
	gwei := decimal.NewFromBigInt(wei, -9)
	if gwei.IsInteger() {
		return gwei.StringFixed(1)
	}
	return gwei.String()
}

// formatMultiple renders value/average truncated to hundredths, then to one
// decimal, e.g. "5.3".
func formatMultiple(value, average *big.Int) string {
	scaled := new(big.Int).Mul(value, hundred)
	scaled.Quo(scaled, average)
	multiple, _ := new(big.Float).SetInt(scaled).Float64()
	return toFixed(multiple/100, 1)
}

// toFixed rounds the exact binary value of f to the given decimals with
// ties going up, so 0.35 (stored just below) becomes "0.3" and 0.25 "0.3".
func toFixed(f float64, places int32) string {
	exact := new(big.Rat).SetFloat64(f)
	if exact == nil {
		return ""
	}

	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(places)), nil)
	exact.Mul(exact, new(big.Rat).SetInt(pow))
	exact.Add(exact, half)
	rounded := new(big.Int).Div(exact.Num(), exact.Denom())
	return decimal.NewFromBigInt(rounded, -places).StringFixed(places)
}
