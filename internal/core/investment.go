package core

import "github.com/shopspring/decimal"

// ProjectionPrincipal is the reference amount used for investment projections.
var ProjectionPrincipal = decimal.NewFromInt(1000)

const projectionMonths = 12

// RiskSummary counts catalog entries per risk bucket.
type RiskSummary struct {
	Low     int
	Medium  int
	High    int
	Unknown int
	Total   int
}

// ProjectedAnnualValue compounds the reference principal monthly for a year:
// 1000 * (1 + rate)^12.
func ProjectedAnnualValue(inv Investment) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(inv.MonthlyRate)
	value := ProjectionPrincipal
	for i := 0; i < projectionMonths; i++ {
		value = value.Mul(factor)
	}
	return value
}

func ProjectedReturn(inv Investment) decimal.Decimal {
	return ProjectedAnnualValue(inv).Sub(ProjectionPrincipal)
}

func SummarizeRisk(investments []Investment) RiskSummary {
	var s RiskSummary
	for _, inv := range investments {
		switch inv.Risk() {
		case RiskLow:
			s.Low++
		case RiskMedium:
			s.Medium++
		case RiskHigh:
			s.High++
		default:
			s.Unknown++
		}
	}
	s.Total = len(investments)
	return s
}
