package core

import (
	"github.com/shopspring/decimal"
)

// Pow10 returns 10^exp as a decimal, used to move between whole-token and
// fixed-point representations.
func Pow10(exp int32) decimal.Decimal {
	return decimal.New(1, exp)
}

// Fixed-point scales shared across the auction math.
var (
	Scale1e18  = decimal.New(1, 18) // decay base and multipliers blend
	ShareScale = decimal.New(1, 6)  // auction shares
)

// ValueOf converts a fixed-point asset amount into numeraire units given a
// price quoted in numeraire fixed-point per whole token. Truncating, to
// mirror on-chain integer division.
func ValueOf(amount, price decimal.Decimal, assetDecimals int32) decimal.Decimal {
	return price.Mul(amount).Div(Pow10(assetDecimals)).Truncate(0)
}
