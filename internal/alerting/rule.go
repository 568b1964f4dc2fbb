package alerting

import (
	"fmt"
	"time"

	"macrowatch/internal/config"
	"macrowatch/internal/validation"
)

// Alert is one triggered rule instance ready for dispatch.
type Alert struct {
	RuleName    string
	Severity    string
	Description string
	Timestamp   time.Time
	Details     string
	Metadata    map[string]any
}

// Rule couples a typed condition with dispatch metadata and a cooldown.
type Rule struct {
	Name        string
	Enabled     bool
	Severity    string
	Description string
	Cooldown    time.Duration
	Condition   Condition

	lastFired time.Time
	now       func() time.Time
}

// NewRule builds a rule; the condition must not be nil.
func NewRule(name string, cond Condition) *Rule {
	return &Rule{
		Name:      name,
		Enabled:   true,
		Severity:  "info",
		Cooldown:  24 * time.Hour,
		Condition: cond,
		now:       time.Now,
	}
}

// OnCooldown reports whether the rule fired within its cooldown window.
func (r *Rule) OnCooldown() bool {
	if r.lastFired.IsZero() {
		return false
	}
	return r.now().Before(r.lastFired.Add(r.Cooldown))
}

// Evaluate checks the rule against the run context and returns the triggered
// alert, or nil. A triggered rule starts its cooldown immediately.
func (r *Rule) Evaluate(c Context) *Alert {
	if !r.Enabled || r.OnCooldown() {
		return nil
	}

	outcome, triggered := r.Condition.evaluate(c)
	if !triggered {
		return nil
	}

	r.lastFired = r.now()
	return &Alert{
		RuleName:    r.Name,
		Severity:    r.Severity,
		Description: r.Description,
		Timestamp:   r.now(),
		Details:     outcome.Details,
		Metadata:    outcome.Metadata,
	}
}

// BuildRules converts configured rules into typed ones. Unknown condition
// types are rejected so misconfigured rules fail at startup rather than
// silently never firing.
func BuildRules(cfgs []config.RuleConfig) ([]*Rule, error) {
	rules := make([]*Rule, 0, len(cfgs))
	for _, cfg := range cfgs {
		cond, err := buildCondition(cfg.Condition)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", cfg.Name, err)
		}

		rule := NewRule(cfg.Name, cond)
		rule.Enabled = cfg.Enabled
		if cfg.Severity != "" {
			rule.Severity = cfg.Severity
		}
		rule.Description = cfg.Description
		if cfg.CooldownHours > 0 {
			rule.Cooldown = time.Duration(cfg.CooldownHours * float64(time.Hour))
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func buildCondition(cfg config.ConditionConfig) (Condition, error) {
	switch cfg.Type {
	case "ingestion_status":
		if len(cfg.Statuses) == 0 {
			return nil, fmt.Errorf("ingestion_status condition requires statuses")
		}
		return IngestionStatusCondition{Statuses: cfg.Statuses}, nil

	case "dq_count":
		severity := validation.SeverityCritical
		if cfg.Severity != "" {
			severity = validation.Severity(cfg.Severity)
		}
		operator := cfg.Operator
		if operator == "" {
			operator = ">="
		}
		threshold := int(cfg.Threshold)
		if threshold == 0 {
			threshold = 1
		}
		return DQCountCondition{Severity: severity, Operator: operator, Threshold: threshold}, nil

	case "data_freshness":
		maxAge := cfg.MaxAgeDays
		if maxAge == 0 {
			maxAge = 60
		}
		return DataFreshnessCondition{MaxAgeDays: maxAge}, nil

	case "missing_data":
		days := cfg.Days
		if days == 0 {
			days = 30
		}
		return MissingDataCondition{Days: days}, nil

	case "error_rate":
		operator := cfg.Operator
		if operator == "" {
			operator = ">="
		}
		threshold := cfg.Threshold
		if threshold == 0 {
			threshold = 0.20
		}
		return ErrorRateCondition{Operator: operator, Threshold: threshold}, nil
	}
	return nil, fmt.Errorf("unknown condition type %q", cfg.Type)
}
