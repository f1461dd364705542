package problems

import (
	"context"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fatih/structs"
	"github.com/mohae/deepcopy"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/chartline-org/chartline/config"
	"github.com/chartline-org/chartline/extractor"
)

const (
	// DispositionNewProblem is assigned when no existing problem matches the mention.
	DispositionNewProblem = "NEW_PROBLEM"
	// DispositionStatusUpdate is assigned when a matched problem's code or status changes.
	DispositionStatusUpdate = "STATUS_UPDATE"
	// DispositionVisitMention is assigned when a matched problem is documented without material change.
	DispositionVisitMention = "VISIT_MENTION"
	// DispositionDiscarded is assigned to mentions below the confidence threshold.
	DispositionDiscarded = "DISCARDED_LOW_CONFIDENCE"
)

type ReconcileParams struct {
	PatientId   primitive.ObjectID
	EncounterId primitive.ObjectID
	ProviderId  string
	NoteDate    time.Time
	Mentions    []extractor.MentionCandidate
}

type ItemError struct {
	MentionTitle string `json:"mentionTitle"`
	ProblemId    string `json:"problemId,omitempty"`
	Message      string `json:"message"`
}

type ReconcileResult struct {
	Created   int
	Updated   int
	Mentioned int
	Discarded int

	AffectedProblemIds []string
	Errors             []ItemError
	Elapsed            time.Duration
}

// Reconciler applies extracted problem mentions to a patient's problem list.
// Processing is intentionally not all-or-nothing: one failed mention is
// recorded and the rest still land.
type Reconciler interface {
	Reconcile(ctx context.Context, params ReconcileParams) *ReconcileResult
}

type reconciler struct {
	repo   Repository
	ledger Ledger
	cfg    *config.Config
	logger *zap.SugaredLogger
}

var _ Reconciler = &reconciler{}

func NewReconciler(repo Repository, ledger Ledger, cfg *config.Config, logger *zap.SugaredLogger) (Reconciler, error) {
	return &reconciler{
		repo:   repo,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (r *reconciler) Reconcile(ctx context.Context, params ReconcileParams) *ReconcileResult {
	start := time.Now()
	result := &ReconcileResult{}
	affected := mapset.NewSet[string]()

	working, err := r.repo.ListForPatient(ctx, params.PatientId.Hex(), OpenStatuses())
	if err != nil {
		result.Errors = append(result.Errors, ItemError{
			Message: fmt.Sprintf("error loading problem list: %v", err),
		})
		result.Elapsed = time.Since(start)
		return result
	}

	for _, mention := range params.Mentions {
		if mention.Confidence < r.cfg.MentionConfidenceThreshold {
			r.logClassification(params, mention, DispositionDiscarded, "")
			result.Discarded++
			continue
		}

		matched := r.match(mention, working)
		if matched == nil {
			problem, err := r.createProblem(ctx, params, mention)
			if err != nil {
				result.Errors = append(result.Errors, ItemError{
					MentionTitle: mention.Title,
					Message:      err.Error(),
				})
				continue
			}
			working = append(working, problem)
			affected.Add(problem.Id.Hex())
			r.logClassification(params, mention, DispositionNewProblem, problem.Id.Hex())
			result.Created++
			continue
		}

		if r.isMaterialChange(mention, matched) {
			if err := r.applyStatusUpdate(ctx, params, mention, matched); err != nil {
				result.Errors = append(result.Errors, ItemError{
					MentionTitle: mention.Title,
					ProblemId:    matched.Id.Hex(),
					Message:      err.Error(),
				})
				continue
			}
			affected.Add(matched.Id.Hex())
			r.logClassification(params, mention, DispositionStatusUpdate, matched.Id.Hex())
			result.Updated++
		} else {
			if err := r.applyVisitMention(ctx, params, mention, matched); err != nil {
				result.Errors = append(result.Errors, ItemError{
					MentionTitle: mention.Title,
					ProblemId:    matched.Id.Hex(),
					Message:      err.Error(),
				})
				continue
			}
			affected.Add(matched.Id.Hex())
			r.logClassification(params, mention, DispositionVisitMention, matched.Id.Hex())
			result.Mentioned++
		}
	}

	result.AffectedProblemIds = affected.ToSlice()
	result.Elapsed = time.Since(start)
	return result
}

func (r *reconciler) logClassification(params ReconcileParams, mention extractor.MentionCandidate, disposition string, problemId string) {
	r.logger.Infow("classified mention",
		"title", mention.Title,
		"confidence", mention.Confidence,
		"disposition", disposition,
		"problemId", problemId,
		"encounterId", params.EncounterId.Hex(),
	)
}

// match finds the existing problem a mention refers to, or nil. Candidates
// qualify by title similarity or diagnosis code family; a conflicting body-site
// or laterality hint disqualifies. Ties go to the most recently updated problem.
func (r *reconciler) match(mention extractor.MentionCandidate, working []*MedicalProblem) *MedicalProblem {
	normalizedMention := NormalizeTitle(mention.Title)

	var best *MedicalProblem
	var bestScore float64

	for _, problem := range working {
		if hintsConflict(mention.BodySite, mention.Laterality, problem) {
			continue
		}

		score := TitleSimilarity(normalizedMention, NormalizeTitle(problem.ProblemTitle))
		if CodesMatch(mention.SuggestedCode, problem.CurrentIcd10Code) && score < 1 {
			score = 1
		}
		if score < r.cfg.TitleSimilarityThreshold {
			continue
		}

		if best == nil || score > bestScore ||
			(score == bestScore && problem.UpdatedAt.After(best.UpdatedAt)) {
			best = problem
			bestScore = score
		}
	}

	return best
}

func (r *reconciler) isMaterialChange(mention extractor.MentionCandidate, problem *MedicalProblem) bool {
	if mention.SuggestedCode != "" && mention.SuggestedCode != problem.CurrentIcd10Code {
		return true
	}
	if mention.SuggestedStatus != "" && Status(mention.SuggestedStatus) != problem.ProblemStatus {
		return true
	}
	return false
}

func (r *reconciler) createProblem(ctx context.Context, params ReconcileParams, mention extractor.MentionCandidate) (*MedicalProblem, error) {
	status := Status(mention.SuggestedStatus)
	if !status.IsValid() {
		status = StatusActive
	}

	problem, err := r.repo.Create(ctx, MedicalProblem{
		PatientId:          params.PatientId,
		ProblemTitle:       mention.Title,
		CurrentIcd10Code:   mention.SuggestedCode,
		ProblemStatus:      status,
		BodySite:           mention.BodySite,
		Laterality:         mention.Laterality,
		FirstDiagnosedDate: params.NoteDate,
		FirstEncounterId:   params.EncounterId,
	})
	if err != nil {
		return nil, err
	}

	if _, err := r.ledger.AppendVisitEntry(ctx, problem.Id.Hex(), VisitEntry{
		EncounterId:   params.EncounterId,
		Date:          params.NoteDate,
		StatusAtVisit: status,
		NoteExcerpt:   mention.SupportingText,
		Source:        VisitSourceDerived,
	}); err != nil {
		return nil, fmt.Errorf("error seeding visit history: %w", err)
	}

	if err := r.repo.AppendChangeLog(ctx, problem.Id.Hex(), ChangeLogEntry{
		Timestamp:   time.Now(),
		EncounterId: params.EncounterId,
		ProviderId:  params.ProviderId,
		Field:       "created",
		OldValue:    "",
		NewValue:    mention.Title,
		Reasoning:   mention.Reasoning,
	}); err != nil {
		return nil, fmt.Errorf("error writing creation change log: %w", err)
	}

	return problem, nil
}

func (r *reconciler) applyStatusUpdate(ctx context.Context, params ReconcileParams, mention extractor.MentionCandidate, problem *MedicalProblem) error {
	snapshot := deepcopy.Copy(*problem).(MedicalProblem)

	code := mention.SuggestedCode
	if code == "" {
		code = problem.CurrentIcd10Code
	}
	status := Status(mention.SuggestedStatus)
	if !status.IsValid() {
		status = problem.ProblemStatus
	}

	updated, err := r.repo.UpdateCanonical(ctx, problem.Id.Hex(), code, status)
	if err != nil {
		return err
	}
	*problem = *updated

	if _, err := r.ledger.AppendVisitEntry(ctx, problem.Id.Hex(), VisitEntry{
		EncounterId:   params.EncounterId,
		Date:          params.NoteDate,
		StatusAtVisit: status,
		NoteExcerpt:   mention.SupportingText,
		Source:        VisitSourceDerived,
	}); err != nil {
		return err
	}

	for _, change := range diffCanonicalFields(&snapshot, problem) {
		change.Timestamp = time.Now()
		change.EncounterId = params.EncounterId
		change.ProviderId = params.ProviderId
		change.Reasoning = mention.Reasoning
		if err := r.repo.AppendChangeLog(ctx, problem.Id.Hex(), change); err != nil {
			return fmt.Errorf("error writing change log: %w", err)
		}
	}

	return nil
}

func (r *reconciler) applyVisitMention(ctx context.Context, params ReconcileParams, mention extractor.MentionCandidate, problem *MedicalProblem) error {
	_, err := r.ledger.AppendVisitEntry(ctx, problem.Id.Hex(), VisitEntry{
		EncounterId:   params.EncounterId,
		Date:          params.NoteDate,
		StatusAtVisit: problem.ProblemStatus,
		NoteExcerpt:   mention.SupportingText,
		Source:        VisitSourceDerived,
	})
	return err
}

// canonicalFields is the slice of MedicalProblem the change log tracks.
type canonicalFields struct {
	CurrentIcd10Code string
	ProblemStatus    string
}

func diffCanonicalFields(before, after *MedicalProblem) []ChangeLogEntry {
	oldFields := structs.Map(&canonicalFields{
		CurrentIcd10Code: before.CurrentIcd10Code,
		ProblemStatus:    string(before.ProblemStatus),
	})
	newFields := structs.Map(&canonicalFields{
		CurrentIcd10Code: after.CurrentIcd10Code,
		ProblemStatus:    string(after.ProblemStatus),
	})

	var changes []ChangeLogEntry
	for _, name := range []string{"CurrentIcd10Code", "ProblemStatus"} {
		oldValue := oldFields[name].(string)
		newValue := newFields[name].(string)
		if oldValue == newValue {
			continue
		}
		changes = append(changes, ChangeLogEntry{
			Field:    fieldName(name),
			OldValue: oldValue,
			NewValue: newValue,
		})
	}
	return changes
}

func fieldName(structField string) string {
	switch structField {
	case "CurrentIcd10Code":
		return "currentIcd10Code"
	case "ProblemStatus":
		return "problemStatus"
	}
	return structField
}
