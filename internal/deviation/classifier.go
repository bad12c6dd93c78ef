package deviation

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/telemetry"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

// Stage names a step of one classification run.
type Stage string

const (
	StageStart            Stage = "start"
	StageContextRetrieved Stage = "context_retrieved"
	StageReasoningCalled  Stage = "reasoning_called"
	StageParsedOK         Stage = "parsed_ok"
	StageParseFailed      Stage = "parse_failed"
	StageRecordReady      Stage = "record_ready"
)

// Options tune context retrieval.
type Options struct {
	TopK     int
	MinScore float64
}

// Classification is the result of one run.
type Classification struct {
	Record   Record          `json:"deviation_analysis"`
	Contexts []search.Result `json:"sop_contexts"`
	Parsed   bool            `json:"parsed"`
	Cause    string          `json:"fallback_cause,omitempty"`
	Stages   []Stage         `json:"-"`
}

// Classifier retrieves reference context for an incident and asks the reasoning
// service to classify it.
type Classifier struct {
	searcher search.Searcher
	llm      reasoning.Completer
	opts     Options
	logger   *log.Logger
}

func NewClassifier(searcher search.Searcher, llm reasoning.Completer, opts Options, logger *log.Logger) *Classifier {
	if opts.TopK <= 0 {
		opts.TopK = search.DefaultTopK
	}
	if opts.MinScore == 0 {
		opts.MinScore = search.DefaultMinScore
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[DEVIATION] ", log.LstdFlags)
	}
	return &Classifier{searcher: searcher, llm: llm, opts: opts, logger: logger}
}

// Classify always returns a complete record. Retrieval failures degrade to an empty
// context; reasoning or parse failures yield Fallback().
func (c *Classifier) Classify(ctx context.Context, incident string) Classification {
	out := Classification{Contexts: []search.Result{}, Stages: []Stage{StageStart}}
	finish := func(o Outcome) Classification {
		out.Record = o.Record()
		switch v := o.(type) {
		case Parsed:
			out.Parsed = true
			out.Stages = append(out.Stages, StageParsedOK, StageRecordReady)
		case Unparsed:
			out.Cause = v.Err.Error()
			out.Stages = append(out.Stages, StageParseFailed, StageRecordReady)
			c.logger.Printf("warn: using fallback record: %v", v.Err)
		}
		telemetry.RecordClassification(ctx, out.Parsed)
		return out
	}

	if strings.TrimSpace(incident) == "" {
		return finish(Unparsed{Err: fmt.Errorf("empty incident text")})
	}

	contexts, err := c.searcher.Search(ctx, vectorstore.Reference, incident, c.opts.TopK, c.opts.MinScore)
	if err != nil {
		c.logger.Printf("warn: context retrieval failed: %v", err)
	} else if contexts != nil {
		out.Contexts = contexts
	}
	out.Stages = append(out.Stages, StageContextRetrieved)

	raw, err := c.llm.Complete(ctx, BuildPrompt(incident, out.Contexts))
	out.Stages = append(out.Stages, StageReasoningCalled)
	if err != nil {
		return finish(Unparsed{Err: err})
	}
	return finish(Interpret(raw))
}

// BuildPrompt renders the classification instruction for incident.
func BuildPrompt(incident string, contexts []search.Result) string {
	var b strings.Builder
	b.WriteString("You are a pharmaceutical GMP deviation classification expert. Classify the incident below ")
	b.WriteString("using the SOP excerpts as reference.\n\n")
	b.WriteString("INCIDENT:\n")
	b.WriteString(incident)
	b.WriteString("\n\nRELEVANT SOP CONTEXT:\n")
	if len(contexts) == 0 {
		b.WriteString("(no matching SOP content)\n")
	}
	for i, r := range contexts {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, search.SourceLabel(r.SourceID), r.Text)
	}
	b.WriteString(`
Respond with ONLY a JSON object of this shape:
{
  "is_deviation": true/false,
  "deviation_type": "planned/unplanned",
  "severity_level": "critical/major/minor/observation",
  "deviation_category": "equipment/process/documentation/training/environmental/material",
  "stage_of_occurrence": "manufacturing/packaging/storage/testing/other",
  "risk_assessment": {
    "product_quality_impact": "confirmed/potential/none",
    "patient_safety_impact": "high/medium/low/none",
    "regulatory_impact": "high/medium/low",
    "business_impact": "high/medium/low"
  },
  "immediate_actions": ["action1", "action2"],
  "investigation_requirements": ["requirement1", "requirement2"],
  "root_cause_categories": ["category1", "category2"],
  "training_implications": {
    "needs_retraining": true/false,
    "affected_roles": ["role1", "role2"],
    "training_urgency": "immediate/within_week/within_month"
  },
  "regulatory_references": ["reference1", "reference2"],
  "confidence_score": 0.0-1.0
}
`)
	return b.String()
}
