package problems

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Ledger owns the append-only visit history of every problem and enforces that
// history written during a signed encounter is never touched again.
type Ledger interface {
	AppendVisitEntry(ctx context.Context, problemId string, entry VisitEntry) (*VisitEntry, error)
	FinalizeForEncounter(ctx context.Context, encounterId string) error
	GetVisitHistory(ctx context.Context, problemId string) ([]*VisitEntry, error)
}

type ledger struct {
	repo       Repository
	encounters EncounterChecker
	logger     *zap.SugaredLogger
}

var _ Ledger = &ledger{}

func NewLedger(repo Repository, encounters EncounterChecker, logger *zap.SugaredLogger) (Ledger, error) {
	return &ledger{
		repo:       repo,
		encounters: encounters,
		logger:     logger,
	}, nil
}

func (l *ledger) AppendVisitEntry(ctx context.Context, problemId string, entry VisitEntry) (*VisitEntry, error) {
	signed, err := l.encounters.IsSigned(ctx, entry.EncounterId.Hex())
	if err != nil {
		return nil, fmt.Errorf("error checking encounter state: %w", err)
	}
	if signed {
		return nil, fmt.Errorf("%w: encounter %s", ErrImmutableHistory, entry.EncounterId.Hex())
	}

	// Entries always start out as drafts; only finalization flips them.
	entry.Signed = false
	return l.repo.AppendVisitEntry(ctx, problemId, entry)
}

func (l *ledger) FinalizeForEncounter(ctx context.Context, encounterId string) error {
	count, err := l.repo.MarkVisitEntriesSigned(ctx, encounterId)
	if err != nil {
		return err
	}
	l.logger.Infow("finalized visit history for encounter",
		"encounterId", encounterId,
		"entriesSigned", count,
	)
	return nil
}

func (l *ledger) GetVisitHistory(ctx context.Context, problemId string) ([]*VisitEntry, error) {
	return l.repo.VisitEntries(ctx, problemId)
}
