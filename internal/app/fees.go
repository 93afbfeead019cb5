package app

import "github.com/shopspring/decimal"

// DefaultProcessingFeeBasisPoints is 0.75%.
const DefaultProcessingFeeBasisPoints = 75

var basisPointsPerUnit = decimal.NewFromInt(10_000)

// ProcessingFee returns amountCents * bps / 10000 rounded half-up to a whole cent.
func ProcessingFee(amountCents, basisPoints int64) int64 {
	if amountCents <= 0 || basisPoints <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(basisPoints)).
		Div(basisPointsPerUnit).
		Round(0)
	return fee.IntPart()
}
