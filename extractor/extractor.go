package extractor

import (
	"context"
	"fmt"
	"strings"
)

// Statuses the extractor is allowed to suggest for a problem mention.
var validStatuses = map[string]struct{}{
	"active":    {},
	"chronic":   {},
	"improved":  {},
	"worsening": {},
	"resolved":  {},
}

var validOrderTypes = map[string]struct{}{
	"medication": {},
	"lab":        {},
	"imaging":    {},
	"referral":   {},
}

//go:generate go tool mockgen -source=./extractor.go -destination=./test/mock_extractor.go -package test

// Extractor turns free clinical text into structured candidates. Implementations
// may be slow, fail transiently or hallucinate; callers must treat the result as
// untrusted until sanitized.
type Extractor interface {
	Extract(ctx context.Context, text string, pc PatientContext) (*Result, error)
}

type ProblemRef struct {
	Title     string
	Icd10Code string
}

// PatientContext is the minimal demographic and problem-list context sent
// alongside the text on every extraction call.
type PatientContext struct {
	Age            int
	Sex            string
	ActiveProblems []ProblemRef
}

type MentionCandidate struct {
	Title           string  `json:"title"`
	SuggestedCode   string  `json:"suggestedCode"`
	SuggestedStatus string  `json:"suggestedStatus"`
	Confidence      float64 `json:"confidence"`
	SupportingText  string  `json:"supportingText"`
	Reasoning       string  `json:"reasoning"`
	BodySite        string  `json:"bodySite,omitempty"`
	Laterality      string  `json:"laterality,omitempty"`
}

type OrderCandidate struct {
	OrderType string                 `json:"orderType"`
	Payload   map[string]interface{} `json:"payload"`
}

type Result struct {
	Mentions []MentionCandidate
	Orders   []OrderCandidate
	Warnings []string
}

// Sanitize drops candidates with an unusable shape and records a warning for
// each. A fully hallucinated or malformed response degrades to an empty result
// instead of failing the caller.
func (r *Result) Sanitize() {
	mentions := make([]MentionCandidate, 0, len(r.Mentions))
	for _, m := range r.Mentions {
		if strings.TrimSpace(m.Title) == "" {
			r.Warnings = append(r.Warnings, "dropped mention with empty title")
			continue
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dropped mention %q with out-of-range confidence %v", m.Title, m.Confidence))
			continue
		}
		if m.SuggestedStatus != "" {
			if _, ok := validStatuses[strings.ToLower(m.SuggestedStatus)]; !ok {
				r.Warnings = append(r.Warnings, fmt.Sprintf("dropped mention %q with unknown status %q", m.Title, m.SuggestedStatus))
				continue
			}
			m.SuggestedStatus = strings.ToLower(m.SuggestedStatus)
		}
		mentions = append(mentions, m)
	}
	r.Mentions = mentions

	orders := make([]OrderCandidate, 0, len(r.Orders))
	for _, o := range r.Orders {
		if _, ok := validOrderTypes[strings.ToLower(o.OrderType)]; !ok {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dropped order candidate with unknown type %q", o.OrderType))
			continue
		}
		if len(o.Payload) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("dropped %s order candidate with empty payload", o.OrderType))
			continue
		}
		o.OrderType = strings.ToLower(o.OrderType)
		orders = append(orders, o)
	}
	r.Orders = orders
}

func EmptyResult(warnings ...string) *Result {
	return &Result{
		Mentions: []MentionCandidate{},
		Orders:   []OrderCandidate{},
		Warnings: warnings,
	}
}
