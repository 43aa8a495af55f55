package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/torqueops/dispatch/internal/config"
	"github.com/torqueops/dispatch/internal/model"
)

func defaultConfig() config.CommissionConfig {
	return config.CommissionConfig{
		Enabled:           true,
		AutoCharge:        true,
		Rate:              0.30,
		AbsoluteTolerance: 25,
		PercentTolerance:  0.15,
	}
}

func TestEvaluateFlagsLargeShortfall(t *testing.T) {
	engine := NewEngine(defaultConfig())
	job := model.Job{ExpectedRevenue: 120}

	ev := engine.Evaluate(job, 80)

	assert.InDelta(t, 120, ev.ExpectedRevenue, 0.001)
	assert.InDelta(t, 40, ev.Shortfall, 0.001)
	assert.InDelta(t, 24, ev.CommissionAmount, 0.001)
	assert.True(t, ev.UnderReport)
	assert.Contains(t, ev.UnderReportReason, "80.00")
	assert.Contains(t, ev.UnderReportReason, "120.00")
	assert.True(t, ev.ShouldAutoCharge)
}

func TestEvaluateSmallShortfallNotFlagged(t *testing.T) {
	engine := NewEngine(defaultConfig())
	job := model.Job{ExpectedRevenue: 120}

	ev := engine.Evaluate(job, 110)

	assert.InDelta(t, 10, ev.Shortfall, 0.001)
	assert.False(t, ev.UnderReport)
	assert.Empty(t, ev.UnderReportReason)
}

func TestEvaluateTolerances(t *testing.T) {
	tests := []struct {
		name     string
		expected float64
		reported float64
		flagged  bool
	}{
		// 30 > $25 absolute tolerance even though 10% < 15%.
		{"absolute tolerance exceeded", 300, 270, true},
		// 20 < $25 but 20% > 15% of expected.
		{"percent tolerance exceeded", 100, 80, true},
		{"within both tolerances", 100, 90, false},
		{"exact report", 100, 100, false},
		{"over-report", 100, 130, false},
		{"zero expected revenue", 0, 50, false},
		{"zero reported amount", 100, 0, false},
	}

	engine := NewEngine(defaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := engine.Evaluate(model.Job{ExpectedRevenue: tt.expected}, tt.reported)
			assert.Equal(t, tt.flagged, ev.UnderReport)
		})
	}
}

func TestExpectedRevenueIsRunningMaximum(t *testing.T) {
	engine := NewEngine(defaultConfig())

	job := model.Job{QuotedPrice: 100, FinalPrice: 150, ExpectedRevenue: 120}
	ev := engine.Evaluate(job, 150)
	assert.InDelta(t, 150, ev.ExpectedRevenue, 0.001)

	// A later downward price correction does not lower it.
	job.FinalPrice = 90
	job.ExpectedRevenue = ev.ExpectedRevenue
	ev = engine.Evaluate(job, 90)
	assert.InDelta(t, 150, ev.ExpectedRevenue, 0.001)

	// Negative price fields are coerced to zero, never propagated.
	ev = engine.Evaluate(model.Job{QuotedPrice: -40}, 10)
	assert.InDelta(t, 0, ev.ExpectedRevenue, 0.001)
}

func TestRateClamping(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rate = 1.7
	assert.InDelta(t, 1.0, NewEngine(cfg).Rate(), 0.001)

	cfg.Rate = -0.2
	assert.InDelta(t, 0.0, NewEngine(cfg).Rate(), 0.001)
}

func TestShouldAutoCharge(t *testing.T) {
	cfg := defaultConfig()
	job := model.Job{ExpectedRevenue: 100}

	ev := NewEngine(cfg).Evaluate(job, 100)
	assert.True(t, ev.ShouldAutoCharge)

	cfg.AutoCharge = false
	ev = NewEngine(cfg).Evaluate(job, 100)
	assert.False(t, ev.ShouldAutoCharge)

	cfg.AutoCharge = true
	cfg.Enabled = false
	ev = NewEngine(cfg).Evaluate(job, 100)
	assert.False(t, ev.ShouldAutoCharge)

	// Zero commission never auto-charges.
	cfg.Enabled = true
	ev = NewEngine(cfg).Evaluate(job, 0)
	assert.False(t, ev.ShouldAutoCharge)
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 33.33, Round2(33.3333), 0.0001)
	assert.InDelta(t, 0.1, Round2(0.1), 0.0001)
	assert.InDelta(t, 2.68, Round2(2.675), 0.0001)
}
