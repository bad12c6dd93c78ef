// Package deviation classifies free-text incidents into structured GMP deviation records.
package deviation

import (
	"fmt"
	"slices"
)

type (
	Type     string
	Severity string
	Category string
)

const (
	Planned   Type = "planned"
	Unplanned Type = "unplanned"

	Critical    Severity = "critical"
	Major       Severity = "major"
	Minor       Severity = "minor"
	Observation Severity = "observation"

	Equipment     Category = "equipment"
	Process       Category = "process"
	Documentation Category = "documentation"
	Training      Category = "training"
	Environmental Category = "environmental"
	Material      Category = "material"
)

var (
	Types      = []Type{Planned, Unplanned}
	Severities = []Severity{Critical, Major, Minor, Observation}
	Categories = []Category{Equipment, Process, Documentation, Training, Environmental, Material}

	QualityImpacts    = []string{"confirmed", "potential", "none"}
	SafetyImpacts     = []string{"high", "medium", "low", "none"}
	RegulatoryImpacts = []string{"high", "medium", "low"}
	BusinessImpacts   = []string{"high", "medium", "low"}
	TrainingUrgencies = []string{"immediate", "within_week", "within_month"}
)

// RiskAssessment grades four impact dimensions.
type RiskAssessment struct {
	ProductQualityImpact string `json:"product_quality_impact"`
	PatientSafetyImpact  string `json:"patient_safety_impact"`
	RegulatoryImpact     string `json:"regulatory_impact"`
	BusinessImpact       string `json:"business_impact"`
}

// TrainingImplications says who needs retraining and how soon.
type TrainingImplications struct {
	NeedsRetraining bool     `json:"needs_retraining"`
	AffectedRoles   []string `json:"affected_roles"`
	TrainingUrgency string   `json:"training_urgency"`
}

// Record is a fully populated deviation classification. Values are never partially filled.
type Record struct {
	IsDeviation               bool                 `json:"is_deviation"`
	Type                      Type                 `json:"deviation_type"`
	Severity                  Severity             `json:"severity_level"`
	Category                  Category             `json:"deviation_category"`
	StageOfOccurrence         string               `json:"stage_of_occurrence"`
	RiskAssessment            RiskAssessment       `json:"risk_assessment"`
	ImmediateActions          []string             `json:"immediate_actions"`
	InvestigationRequirements []string             `json:"investigation_requirements"`
	RootCauseCategories       []string             `json:"root_cause_categories"`
	TrainingImplications      TrainingImplications `json:"training_implications"`
	RegulatoryReferences      []string             `json:"regulatory_references"`
	ConfidenceScore           float64              `json:"confidence_score"`
}

// Fallback is the record returned whenever the reasoning step cannot be used.
func Fallback() Record {
	return Record{
		IsDeviation:       true,
		Type:              Unplanned,
		Severity:          Major,
		Category:          Environmental,
		StageOfOccurrence: "storage",
		RiskAssessment: RiskAssessment{
			ProductQualityImpact: "potential",
			PatientSafetyImpact:  "medium",
			RegulatoryImpact:     "high",
			BusinessImpact:       "medium",
		},
		ImmediateActions: []string{
			"Quarantine affected materials",
			"Notify Quality Assurance immediately",
			"Document the deviation in batch records",
			"Assess impact on material stability",
		},
		InvestigationRequirements: []string{
			"Root cause analysis using 5 Whys",
			"Review environmental monitoring system logs",
			"Interview involved personnel",
			"Assess material stability data",
		},
		RootCauseCategories: []string{"human_error", "equipment_failure", "procedural_gap"},
		TrainingImplications: TrainingImplications{
			NeedsRetraining: true,
			AffectedRoles:   []string{"warehouse_operators", "quality_control"},
			TrainingUrgency: "within_week",
		},
		RegulatoryReferences: []string{"FDA 21 CFR 211.100", "FDA 21 CFR 211.192", "EU GMP Chapter 1"},
		ConfidenceScore:      0.85,
	}
}

// Validate checks every enumerated field and the confidence range.
func (r Record) Validate() error {
	switch {
	case !slices.Contains(Types, r.Type):
		return fmt.Errorf("deviation_type %q not allowed", r.Type)
	case !slices.Contains(Severities, r.Severity):
		return fmt.Errorf("severity_level %q not allowed", r.Severity)
	case !slices.Contains(Categories, r.Category):
		return fmt.Errorf("deviation_category %q not allowed", r.Category)
	case r.StageOfOccurrence == "":
		return fmt.Errorf("stage_of_occurrence is empty")
	case !slices.Contains(QualityImpacts, r.RiskAssessment.ProductQualityImpact):
		return fmt.Errorf("product_quality_impact %q not allowed", r.RiskAssessment.ProductQualityImpact)
	case !slices.Contains(SafetyImpacts, r.RiskAssessment.PatientSafetyImpact):
		return fmt.Errorf("patient_safety_impact %q not allowed", r.RiskAssessment.PatientSafetyImpact)
	case !slices.Contains(RegulatoryImpacts, r.RiskAssessment.RegulatoryImpact):
		return fmt.Errorf("regulatory_impact %q not allowed", r.RiskAssessment.RegulatoryImpact)
	case !slices.Contains(BusinessImpacts, r.RiskAssessment.BusinessImpact):
		return fmt.Errorf("business_impact %q not allowed", r.RiskAssessment.BusinessImpact)
	case !slices.Contains(TrainingUrgencies, r.TrainingImplications.TrainingUrgency):
		return fmt.Errorf("training_urgency %q not allowed", r.TrainingImplications.TrainingUrgency)
	case r.ConfidenceScore < 0 || r.ConfidenceScore > 1:
		return fmt.Errorf("confidence_score %v outside [0,1]", r.ConfidenceScore)
	case r.ImmediateActions == nil || r.InvestigationRequirements == nil || r.RootCauseCategories == nil ||
		r.RegulatoryReferences == nil || r.TrainingImplications.AffectedRoles == nil:
		return fmt.Errorf("list fields must be present")
	}
	return nil
}

// ParseSeverity normalises s to a known severity.
func ParseSeverity(s string) (Severity, bool) {
	v := Severity(normalizeToken(s))
	return v, slices.Contains(Severities, v)
}

// ParseCategory normalises s to a known category.
func ParseCategory(s string) (Category, bool) {
	v := Category(normalizeToken(s))
	return v, slices.Contains(Categories, v)
}

// Manual builds a record from operator-chosen severity and category without a reasoning call.
func Manual(sev Severity, cat Category) Record {
	high := sev == Critical || sev == Major
	r := Record{
		IsDeviation:       true,
		Type:              Unplanned,
		Severity:          sev,
		Category:          cat,
		StageOfOccurrence: "manufacturing",
		RiskAssessment: RiskAssessment{
			ProductQualityImpact: pick(high, "confirmed", "potential"),
			PatientSafetyImpact:  pick(sev == Critical, "medium", "low"),
			RegulatoryImpact:     pick(high, "high", "medium"),
			BusinessImpact:       "medium",
		},
		ImmediateActions: []string{
			"Investigate root cause",
			"Document incident",
			"Notify relevant departments",
			"Quarantine affected materials if applicable",
		},
		InvestigationRequirements: []string{
			"Root cause analysis using 5 Whys methodology",
			"Review relevant documentation",
			"Interview involved personnel",
		},
		RootCauseCategories: []string{},
		TrainingImplications: TrainingImplications{
			NeedsRetraining: true,
			AffectedRoles:   []string{"operators", "supervisors", "quality_personnel"},
			TrainingUrgency: pick(sev == Critical, "immediate", "within_week"),
		},
		RegulatoryReferences: []string{},
		ConfidenceScore:      1,
	}
	return r
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
