package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Flat platform rates. Amounts are plain decimal figures, not cents-scaled.
var (
	// HostPayoutRate is the share of the booking cost credited to the host
	// when a private booking completes (platform keeps the remaining 15%).
	HostPayoutRate = decimal.RequireFromString("0.85")

	// PrivateTaxRate applies to private bookings only.
	PrivateTaxRate = decimal.RequireFromString("0.18")
)

// EstimateCost prices a scheduled window at an hourly rate, rounded to two
// decimal places. Partial hours are billed proportionally.
func EstimateCost(hourlyRate decimal.Decimal, start, end time.Time) decimal.Decimal {
	if !end.After(start) {
		return decimal.Zero
	}
	hours := decimal.NewFromFloat(end.Sub(start).Minutes()).Div(decimal.NewFromInt(60))
	return hourlyRate.Mul(hours).Round(2)
}

func PrivateTax(estimatedCost decimal.Decimal) decimal.Decimal {
	return estimatedCost.Mul(PrivateTaxRate).Round(2)
}

func HostPayout(estimatedCost decimal.Decimal) decimal.Decimal {
	return estimatedCost.Mul(HostPayoutRate).Round(2)
}
