package compliance

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
)

// verdict is a decoded reply object read field by field, so a loosely typed
// descriptive field never costs the entry its decisive flags.
type verdict map[string]any

func askVerdict(ctx context.Context, llm reasoning.Completer, prompt string) (verdict, error) {
	var v verdict
	if _, err := reasoning.CompleteJSON(ctx, llm, prompt, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// flag accepts a JSON boolean or a boolean-looking string.
func (v verdict) flag(key string) bool {
	switch x := v[key].(type) {
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return err == nil && b
	}
	return false
}

func (v verdict) text(key string) string {
	return textOf(v[key])
}

// list accepts an array, or a single scalar standing in for a one-item list.
func (v verdict) list(key string) []string {
	switch x := v[key].(type) {
	case nil:
		return []string{}
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := textOf(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := textOf(x); s != "" {
			return []string{s}
		}
		return []string{}
	}
}

func textOf(x any) string {
	switch t := x.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func (v verdict) critical() CriticalAssessment {
	return CriticalAssessment{
		IsCritical:                 v.flag("is_critical"),
		RiskLevel:                  strings.ToLower(v.text("risk_level")),
		ImmediateAttentionRequired: v.flag("immediate_attention_required"),
		AffectedAreas:              v.list("affected_areas"),
		PotentialImpact:            v.text("potential_impact"),
		RecommendedActions:         v.list("recommended_actions"),
	}
}

func (v verdict) trend() TrendAssessment {
	return TrendAssessment{
		TrendIdentified:     v.flag("trend_identified"),
		TrendType:           v.text("trend_type"),
		Severity:            strings.ToLower(v.text("severity")),
		RecurrenceFrequency: v.text("recurrence_frequency"),
		RootCausePattern:    v.text("root_cause_pattern"),
		DepartmentsAffected: v.list("departments_affected"),
		RiskImplications:    v.text("risk_implications"),
		PreventiveMeasures:  v.list("preventive_measures"),
	}
}
