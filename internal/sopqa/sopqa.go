// Package sopqa answers operator questions strictly from ingested procedures.
package sopqa

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/sopguard/internal/reasoning"
	"github.com/mohammad-safakhou/sopguard/internal/search"
	"github.com/mohammad-safakhou/sopguard/internal/vectorstore"
)

const (
	NotAvailable = "This information is not available in the current procedures. Please ensure relevant SOPs are uploaded and processed."
	Unavailable  = "The answer could not be generated right now. Please try again shortly."
)

// Answer is returned for every question.
type Answer struct {
	Answer        string   `json:"answer"`
	ContextsUsed  int      `json:"contexts_used"`
	SOPReferences []string `json:"sop_references"`
}

type Service struct {
	searcher search.Searcher
	llm      reasoning.Completer
	topK     int
	minScore float64
	logger   *log.Logger
}

func NewService(searcher search.Searcher, llm reasoning.Completer, topK int, minScore float64, logger *log.Logger) *Service {
	if topK <= 0 {
		topK = search.DefaultTopK
	}
	if minScore == 0 {
		minScore = search.DefaultMinScore
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[QA] ", log.LstdFlags)
	}
	return &Service{searcher: searcher, llm: llm, topK: topK, minScore: minScore, logger: logger}
}

// Ask retrieves reference context for question and asks the reasoning service to answer
// from it. Only validation and embedding failures are returned as errors.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	contexts, err := s.searcher.Search(ctx, vectorstore.Reference, question, s.topK, s.minScore)
	if err != nil {
		return Answer{}, err
	}
	out := Answer{ContextsUsed: len(contexts), SOPReferences: search.DistinctLabels(contexts)}
	if len(contexts) == 0 {
		out.Answer = NotAvailable
		return out, nil
	}
	reply, err := s.llm.Complete(ctx, BuildPrompt(question, contexts))
	if err != nil {
		s.logger.Printf("warn: answer generation failed: %v", err)
		out.Answer = Unavailable
		return out, nil
	}
	out.Answer = strings.TrimSpace(reply)
	return out, nil
}

// BuildPrompt renders the grounded-answer instruction.
func BuildPrompt(question string, contexts []search.Result) string {
	texts := make([]string, len(contexts))
	for i, c := range contexts {
		texts[i] = c.Text
	}
	reference := ""
	if labels := search.DistinctLabels(contexts); len(labels) > 0 {
		reference = " according to " + labels[0]
	}
	return fmt.Sprintf(`You are a pharmaceutical compliance expert. Answer STRICTLY based on the provided SOP content only.

SOP CONTENT:
%s

QUESTION: %s

INSTRUCTIONS:
1. Answer ONLY using the provided SOP content
2. Provide a direct, conversational answer without mentioning "SOP" or "document" repeatedly
3. If the SOP content doesn't contain the answer, say "This information is not available in the current procedures"
4. Be precise and technical but conversational
5. Do not list references or file names in the answer

ANSWER%s:`, strings.Join(texts, "\n\n"), question, reference)
}
