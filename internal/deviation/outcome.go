package deviation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
)

//go:embed record_schema.json
var recordSchemaJSON string

var (
	compileOnce  sync.Once
	recordSchema *jsonschema.Schema
	compileErr   error
)

// RecordSchema returns the compiled schema a reasoning reply must satisfy.
func RecordSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("record_schema.json", strings.NewReader(recordSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("record_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile record schema: %w", err)
			return
		}
		recordSchema = schema
	})
	return recordSchema, compileErr
}

// Outcome is either Parsed or Unparsed.
type Outcome interface {
	// Record collapses the outcome into a complete record.
	Record() Record
	isOutcome()
}

// Parsed holds a reply that matched the record shape, already normalised.
type Parsed struct {
	Value Record
}

// Unparsed holds the reason a reply could not be used.
type Unparsed struct {
	Raw string
	Err error
}

func (p Parsed) Record() Record   { return p.Value }
func (u Unparsed) Record() Record { return Fallback() }
func (Parsed) isOutcome()         {}
func (Unparsed) isOutcome()       {}

// wireRecord mirrors Record with pointers so absent keys can be told apart from zero values.
type wireRecord struct {
	IsDeviation               *bool     `json:"is_deviation"`
	DeviationType             *string   `json:"deviation_type"`
	SeverityLevel             *string   `json:"severity_level"`
	DeviationCategory         *string   `json:"deviation_category"`
	StageOfOccurrence         *string   `json:"stage_of_occurrence"`
	RiskAssessment            *wireRisk `json:"risk_assessment"`
	ImmediateActions          []string  `json:"immediate_actions"`
	InvestigationRequirements []string  `json:"investigation_requirements"`
	RootCauseCategories       []string  `json:"root_cause_categories"`
	TrainingImplications      *struct {
		NeedsRetraining *bool    `json:"needs_retraining"`
		AffectedRoles   []string `json:"affected_roles"`
		TrainingUrgency *string  `json:"training_urgency"`
	} `json:"training_implications"`
	RegulatoryReferences []string `json:"regulatory_references"`
	ConfidenceScore      *float64 `json:"confidence_score"`
}

type wireRisk struct {
	ProductQualityImpact *string `json:"product_quality_impact"`
	PatientSafetyImpact  *string `json:"patient_safety_impact"`
	RegulatoryImpact     *string `json:"regulatory_impact"`
	BusinessImpact       *string `json:"business_impact"`
}

// Interpret turns a raw reasoning reply into an Outcome. It never panics and never
// returns nil.
func Interpret(raw string) Outcome {
	obj, ok := reasoning.ExtractObject(raw)
	if !ok {
		return Unparsed{Raw: raw, Err: reasoning.ErrNoObject}
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return Unparsed{Raw: raw, Err: fmt.Errorf("reply is not valid JSON: %w", err)}
	}
	schema, err := RecordSchema()
	if err != nil {
		return Unparsed{Raw: raw, Err: err}
	}
	if err := conform(schema, doc); err != nil {
		return Unparsed{Raw: raw, Err: fmt.Errorf("reply does not match record schema: %w", err)}
	}
	pruned, err := json.Marshal(doc)
	if err != nil {
		return Unparsed{Raw: raw, Err: err}
	}
	var w wireRecord
	if err := json.Unmarshal(pruned, &w); err != nil {
		return Unparsed{Raw: raw, Err: err}
	}
	return Parsed{Value: w.normalize()}
}

// conform validates doc and deletes every property whose value has the wrong
// type, so normalize fills it from the fallback. It fails when the document
// itself is unusable: not an object, or none of the recognised keys survive.
func conform(schema *jsonschema.Schema, doc any) error {
	for {
		err := schema.Validate(doc)
		if err == nil {
			return nil
		}
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		removed := 0
		for _, loc := range leafLocations(verr) {
			if loc == "" || loc == "/" {
				return err
			}
			if dropPath(doc, loc) {
				removed++
			}
		}
		if removed == 0 {
			return err
		}
	}
}

func leafLocations(e *jsonschema.ValidationError) []string {
	if len(e.Causes) == 0 {
		return []string{e.InstanceLocation}
	}
	var out []string
	for _, c := range e.Causes {
		out = append(out, leafLocations(c)...)
	}
	return out
}

// dropPath deletes the property a JSON pointer names. Inside arrays the whole
// array property goes, since a list with a bad item is replaced as a unit.
func dropPath(doc any, pointer string) bool {
	m, ok := doc.(map[string]any)
	if !ok {
		return false
	}
	segs := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, seg := range segs {
		key, err := url.PathUnescape(seg)
		if err != nil {
			return false
		}
		key = strings.NewReplacer("~1", "/", "~0", "~").Replace(key)
		child, exists := m[key]
		if !exists {
			return false
		}
		next, isMap := child.(map[string]any)
		if i == len(segs)-1 || !isMap {
			delete(m, key)
			return true
		}
		m = next
	}
	return false
}

// normalize fills absent or out-of-range fields from the fallback record and
// clamps the confidence score into [0,1].
func (w wireRecord) normalize() Record {
	r := Fallback()
	if w.IsDeviation != nil {
		r.IsDeviation = *w.IsDeviation
	}
	r.Type = enumOr(w.DeviationType, Types, r.Type)
	r.Severity = enumOr(w.SeverityLevel, Severities, r.Severity)
	r.Category = enumOr(w.DeviationCategory, Categories, r.Category)
	if w.StageOfOccurrence != nil && strings.TrimSpace(*w.StageOfOccurrence) != "" {
		r.StageOfOccurrence = normalizeToken(*w.StageOfOccurrence)
	}
	if ra := w.RiskAssessment; ra != nil {
		r.RiskAssessment.ProductQualityImpact = enumOr(ra.ProductQualityImpact, QualityImpacts, r.RiskAssessment.ProductQualityImpact)
		r.RiskAssessment.PatientSafetyImpact = enumOr(ra.PatientSafetyImpact, SafetyImpacts, r.RiskAssessment.PatientSafetyImpact)
		r.RiskAssessment.RegulatoryImpact = enumOr(ra.RegulatoryImpact, RegulatoryImpacts, r.RiskAssessment.RegulatoryImpact)
		r.RiskAssessment.BusinessImpact = enumOr(ra.BusinessImpact, BusinessImpacts, r.RiskAssessment.BusinessImpact)
	}
	r.ImmediateActions = listOr(w.ImmediateActions, r.ImmediateActions)
	r.InvestigationRequirements = listOr(w.InvestigationRequirements, r.InvestigationRequirements)
	r.RootCauseCategories = listOr(w.RootCauseCategories, r.RootCauseCategories)
	r.RegulatoryReferences = listOr(w.RegulatoryReferences, r.RegulatoryReferences)
	if ti := w.TrainingImplications; ti != nil {
		if ti.NeedsRetraining != nil {
			r.TrainingImplications.NeedsRetraining = *ti.NeedsRetraining
		}
		r.TrainingImplications.AffectedRoles = listOr(ti.AffectedRoles, r.TrainingImplications.AffectedRoles)
		r.TrainingImplications.TrainingUrgency = enumOr(ti.TrainingUrgency, TrainingUrgencies, r.TrainingImplications.TrainingUrgency)
	}
	if w.ConfidenceScore != nil {
		r.ConfidenceScore = min(max(*w.ConfidenceScore, 0), 1)
	}
	return r
}

func enumOr[T ~string](v *string, allowed []T, def T) T {
	if v == nil {
		return def
	}
	t := T(normalizeToken(*v))
	if slices.Contains(allowed, t) {
		return t
	}
	return def
}

// listOr keeps an explicit list, including an empty one.
func listOr(v, def []string) []string {
	if v == nil {
		return def
	}
	return v
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "_")
}
