package market

import (
	"math/big"

	"github.com/openpredict/marketd/internal/domain"
)

var feeRange = big.NewInt(domain.FeeRange)

// FeeAmount computes the protocol fee for a signed gross cost:
//
//	fee = floor(|grossCost| * feeRateNum / FeeRange)
//
// The fee is always non-negative and is computed on the magnitude of the
// cost, so it increases a positive cost and shrinks a negative refund by the
// same rule. The big.Int intermediate cannot overflow.
func FeeAmount(grossCost *big.Int, feeRateNum int64) *big.Int {
	fee := new(big.Int).Abs(grossCost)
	fee.Mul(fee, big.NewInt(feeRateNum))
	return fee.Quo(fee, feeRange)
}
