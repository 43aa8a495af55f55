package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is an immutable snapshot of environment configuration, loaded
// once at startup and passed into components at construction time.
type Config struct {
	Port          string
	Environment   string
	MongoURI      string
	MongoDB       string
	PortalBaseURL string

	Commission CommissionConfig
	SLA        SLAConfig
	Notify     NotifyConfig
	Dispatch   DispatchConfig
}

// CommissionConfig tunes the commission engine.
type CommissionConfig struct {
	Enabled           bool
	AutoCharge        bool
	Rate              float64
	AbsoluteTolerance float64
	PercentTolerance  float64
}

// SLAConfig holds the per-urgency SLA budgets in minutes.
type SLAConfig struct {
	EmergencyMinutes int
	UrgentMinutes    int
	StandardMinutes  int
	// Minutes past the budget before an at-risk job counts as severe.
	SevereOverdueMinutes int
}

// NotifyConfig tunes the resilient channel sender.
type NotifyConfig struct {
	AttemptTimeout   time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DispatchConfig tunes vendor ranking and scorecards.
type DispatchConfig struct {
	SuggestionLimit int
	BacklogWeight   float64
	PausedPenalty   float64
	ScorecardWindow time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB", "dispatch")
	v.SetDefault("PORTAL_BASE_URL", "http://localhost:3000")

	v.SetDefault("COMMISSION_ENABLED", true)
	v.SetDefault("COMMISSION_AUTO_CHARGE", true)
	v.SetDefault("COMMISSION_RATE", 0.30)
	v.SetDefault("UNDER_REPORT_ABS_TOLERANCE", 25.0)
	v.SetDefault("UNDER_REPORT_PCT_TOLERANCE", 0.15)

	v.SetDefault("SLA_EMERGENCY_MINUTES", 15)
	v.SetDefault("SLA_URGENT_MINUTES", 30)
	v.SetDefault("SLA_STANDARD_MINUTES", 45)
	v.SetDefault("SLA_SEVERE_OVERDUE_MINUTES", 10)

	v.SetDefault("NOTIFY_ATTEMPT_TIMEOUT", "4s")
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)
	v.SetDefault("NOTIFY_BACKOFF_BASE", "500ms")
	v.SetDefault("NOTIFY_BREAKER_THRESHOLD", 5)
	v.SetDefault("NOTIFY_BREAKER_COOLDOWN", "60s")

	v.SetDefault("DISPATCH_SUGGESTION_LIMIT", 5)
	v.SetDefault("DISPATCH_BACKLOG_WEIGHT", 2.0)
	v.SetDefault("DISPATCH_PAUSED_PENALTY", 5.0)
	v.SetDefault("DISPATCH_SCORECARD_WINDOW", "720h")

	cfg := Config{
		Port:          v.GetString("PORT"),
		Environment:   v.GetString("ENVIRONMENT"),
		MongoURI:      v.GetString("MONGO_URI"),
		MongoDB:       v.GetString("MONGO_DB"),
		PortalBaseURL: strings.TrimRight(v.GetString("PORTAL_BASE_URL"), "/"),
		Commission: CommissionConfig{
			Enabled:           v.GetBool("COMMISSION_ENABLED"),
			AutoCharge:        v.GetBool("COMMISSION_AUTO_CHARGE"),
			Rate:              v.GetFloat64("COMMISSION_RATE"),
			AbsoluteTolerance: v.GetFloat64("UNDER_REPORT_ABS_TOLERANCE"),
			PercentTolerance:  v.GetFloat64("UNDER_REPORT_PCT_TOLERANCE"),
		},
		SLA: SLAConfig{
			EmergencyMinutes:     v.GetInt("SLA_EMERGENCY_MINUTES"),
			UrgentMinutes:        v.GetInt("SLA_URGENT_MINUTES"),
			StandardMinutes:      v.GetInt("SLA_STANDARD_MINUTES"),
			SevereOverdueMinutes: v.GetInt("SLA_SEVERE_OVERDUE_MINUTES"),
		},
		Notify: NotifyConfig{
			AttemptTimeout:   v.GetDuration("NOTIFY_ATTEMPT_TIMEOUT"),
			MaxAttempts:      v.GetInt("NOTIFY_MAX_ATTEMPTS"),
			BackoffBase:      v.GetDuration("NOTIFY_BACKOFF_BASE"),
			BreakerThreshold: v.GetInt("NOTIFY_BREAKER_THRESHOLD"),
			BreakerCooldown:  v.GetDuration("NOTIFY_BREAKER_COOLDOWN"),
		},
		Dispatch: DispatchConfig{
			SuggestionLimit: v.GetInt("DISPATCH_SUGGESTION_LIMIT"),
			BacklogWeight:   v.GetFloat64("DISPATCH_BACKLOG_WEIGHT"),
			PausedPenalty:   v.GetFloat64("DISPATCH_PAUSED_PENALTY"),
			ScorecardWindow: v.GetDuration("DISPATCH_SCORECARD_WINDOW"),
		},
	}

	return cfg, nil
}

// Default returns the configuration with no environment applied. Tests use
// it as a baseline.
func Default() Config {
	cfg, _ := Load()
	return cfg
}
