package model

import "time"

// PerformanceFilter narrows a performance computation. Institution filtering
// changes matchable inventory and is applied before lot matching; the date
// window is presentational and applied to the already-built NAV series.
type PerformanceFilter struct {
	Institution string    `json:"institution,omitempty"`
	From        time.Time `json:"from,omitempty"`
	To          time.Time `json:"to,omitempty"`
}

// NAVPoint is one day in the net-asset-value series, in the settlement
// currency. RealizedGain and Income are cumulative as of the date.
type NAVPoint struct {
	Date           string  `json:"date"`
	Value          float64 `json:"value"`
	Cost           float64 `json:"cost"`
	UnrealizedGain float64 `json:"unrealizedGain"`
	RealizedGain   float64 `json:"realizedGain"`
	Income         float64 `json:"income"`
	TotalGainLoss  float64 `json:"totalGainLoss"`
}

// CoverageStats reports how much of the final position set a confirmed price
// was resolved for. A ratio below 1.0 flags a degraded valuation.
type CoverageStats struct {
	PositionsTotal  int     `json:"positionsTotal"`
	PositionsPriced int     `json:"positionsPriced"`
	Ratio           float64 `json:"ratio"`
}

// PerformanceResult is the aggregate output of one pipeline run. It is built
// once per invocation and read-only to downstream consumers.
type PerformanceResult struct {
	NAVSeries          []NAVPoint    `json:"navSeries"`
	RealizedGainsTotal float64       `json:"realizedGainsTotal"`
	IncomeTotal        float64       `json:"incomeTotal"`
	FeesTotal          float64       `json:"feesTotal"`
	SimpleReturn       float64       `json:"simpleReturn"`
	SettlementCurrency string        `json:"settlementCurrency"`
	Coverage           CoverageStats `json:"coverage"`
	Warnings           []Warning     `json:"warnings"`
}
