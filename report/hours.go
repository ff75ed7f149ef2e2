package report

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumber reads a decimal written with either a comma or a dot separator.
// Blank or malformed input yields nil.
func ParseNumber(raw string) *float64 {
	d, ok := parseDecimal(raw)
	if !ok {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

// ParseHours is ParseNumber that also rejects negative values.
func ParseHours(raw string) *float64 {
	d, ok := parseDecimal(raw)
	if !ok || d.IsNegative() {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	if strings.Count(s, ",") > 1 || (strings.Contains(s, ",") && strings.Contains(s, ".")) {
		return decimal.Zero, false
	}
	s = strings.Replace(s, ",", ".", 1)
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	// values past the float64 range would surface as +Inf
	if math.IsInf(d.InexactFloat64(), 0) {
		return decimal.Zero, false
	}
	return d, true
}

// SumHours adds the parsed hours of every assignment, per operator.
func SumHours(rows []Row) map[string]float64 {
	totals := make(map[string]decimal.Decimal)
	for _, row := range rows {
		for _, a := range row.OperatorAssignments {
			if a.ParsedHours == nil {
				continue
			}
			totals[a.OperatorID] = totals[a.OperatorID].Add(decimal.NewFromFloat(*a.ParsedHours))
		}
	}
	out := make(map[string]float64, len(totals))
	for id, d := range totals {
		out[id] = d.InexactFloat64()
	}
	return out
}
