// Package commission computes expected revenue, commission amounts, and
// the under-report heuristic. It is pure: all inputs arrive as arguments
// and configuration is fixed at construction.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/model"
)

// Evaluation is the engine's verdict on a reported completion amount.
type Evaluation struct {
	ExpectedRevenue   float64 `json:"expected_revenue"`
	ReportedAmount    float64 `json:"reported_amount"`
	Rate              float64 `json:"rate"`
	CommissionAmount  float64 `json:"commission_amount"`
	Shortfall         float64 `json:"shortfall"`
	UnderReport       bool    `json:"under_report"`
	UnderReportReason string  `json:"under_report_reason,omitempty"`
	ShouldAutoCharge  bool    `json:"should_auto_charge"`
}

type Engine struct {
	rate       decimal.Decimal
	absTol     decimal.Decimal
	pctTol     decimal.Decimal
	enabled    bool
	autoCharge bool
}

func NewEngine(cfg config.CommissionConfig) *Engine {
	rate := decimal.NewFromFloat(cfg.Rate)
	if rate.IsNegative() {
		rate = decimal.Zero
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		rate = decimal.NewFromInt(1)
	}
	return &Engine{
		rate:       rate,
		absTol:     decimal.NewFromFloat(cfg.AbsoluteTolerance),
		pctTol:     decimal.NewFromFloat(cfg.PercentTolerance),
		enabled:    cfg.Enabled,
		autoCharge: cfg.AutoCharge,
	}
}

// Evaluate runs the engine against a job and a reported completion amount.
//
// Expected revenue is the running maximum of the job's final price, quoted
// price, and any previously recorded expected revenue, so it never
// decreases across repeated evaluations. A downward price correction will
// therefore not lower it; the flag a later report picks up as a result can
// be cleared by a dispatcher.
func (e *Engine) Evaluate(job model.Job, reported float64) Evaluation {
	expected := maxNonNegative(job.FinalPrice, job.QuotedPrice, job.ExpectedRevenue)
	rep := decimal.NewFromFloat(reported)

	amount := round2(rep.Mul(e.rate))
	if amount.IsNegative() {
		amount = decimal.Zero
	}

	shortfall := round2(expected.Sub(rep))
	if !expected.IsPositive() || shortfall.IsNegative() {
		shortfall = decimal.Zero
	}

	ev := Evaluation{
		ExpectedRevenue:  expected.InexactFloat64(),
		ReportedAmount:   round2(rep).InexactFloat64(),
		Rate:             e.rate.InexactFloat64(),
		CommissionAmount: amount.InexactFloat64(),
		Shortfall:        shortfall.InexactFloat64(),
		ShouldAutoCharge: e.enabled && e.autoCharge && amount.IsPositive(),
	}

	if expected.IsPositive() && rep.IsPositive() && shortfall.IsPositive() {
		overAbs := shortfall.GreaterThan(e.absTol)
		overPct := shortfall.GreaterThan(expected.Mul(e.pctTol))
		if overAbs || overPct {
			ev.UnderReport = true
			ev.UnderReportReason = fmt.Sprintf(
				"reported %s is below expected revenue %s by %s",
				rep.StringFixed(2), expected.StringFixed(2), shortfall.StringFixed(2),
			)
		}
	}

	return ev
}

// Rate returns the configured commission rate after clamping.
func (e *Engine) Rate() float64 {
	return e.rate.InexactFloat64()
}

// Round2 rounds a currency value to two decimal places. Every component
// that emits money goes through this one function so display and
// settlement never drift.
func Round2(v float64) float64 {
	return round2(decimal.NewFromFloat(v)).InexactFloat64()
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func maxNonNegative(values ...float64) decimal.Decimal {
	max := decimal.Zero
	for _, v := range values {
		d := decimal.NewFromFloat(v)
		if d.GreaterThan(max) {
			max = d
		}
	}
	return max
}
