/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillableHours rounds a duration up to whole hours.
func BillableHours(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Hour - 1) / time.Hour)
}

// Price is the charge for d at the hourly rate, in currency units with two
// decimal places.
func Price(rate decimal.Decimal, d time.Duration) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(BillableHours(d))).Round(2)
}
