package payouts

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
)

var one = decimal.NewFromInt(1)

// LineSplit is the commission/net division of a single line total.
type LineSplit struct {
	CommissionCents int64
	NetCents        int64
}

// ComputeLineSplit divides a line total between platform commission and vendor
// net. The commission is truncated toward zero so rounding never favors the
// platform at the vendor's expense. Pure: identical inputs always yield
// identical outputs, which is what makes re-runs of a cycle safe.
func ComputeLineSplit(totalCents int64, rate decimal.Decimal) (LineSplit, error) {
	if totalCents < 0 {
		return LineSplit{}, pkgerrors.New(pkgerrors.CodeInvariant,
			fmt.Sprintf("line total %d is negative", totalCents))
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
		return LineSplit{}, pkgerrors.New(pkgerrors.CodeInvariant,
			fmt.Sprintf("commission rate %s outside [0, 1)", rate))
	}

	commission := decimal.NewFromInt(totalCents).Mul(rate).Truncate(0).IntPart()
	net := totalCents - commission

	// rate < 1 and truncation guarantee these; a violation means the
	// arithmetic itself is broken and the order must not be paid.
	if commission < 0 || commission > totalCents || net < 0 {
		return LineSplit{}, pkgerrors.New(pkgerrors.CodeInvariant,
			fmt.Sprintf("split %d/%d of %d out of bounds", commission, net, totalCents))
	}

	return LineSplit{CommissionCents: commission, NetCents: net}, nil
}
