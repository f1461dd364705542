package encounters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chartline-org/chartline/audit"
	"github.com/chartline-org/chartline/orders"
	"github.com/chartline-org/chartline/problems"
)

// Notes shorter than this are treated as placeholder text.
const minNoteLength = 10

type SignRequest struct {
	EncounterId string
	ProviderId  string

	// Note, when set, replaces the encounter note before requirements are
	// checked.
	Note *string

	// Force signs the encounter even when requirements fail. The bypassed
	// requirements are recorded as an audit event.
	Force bool
}

type SignResult struct {
	CanSign   bool
	Errors    []string
	SignedAt  *time.Time
	Encounter *Encounter
}

// Coordinator validates signing requirements and runs the signing cascade.
type Coordinator interface {
	Sign(ctx context.Context, request SignRequest) (*SignResult, error)
}

type coordinator struct {
	repo   Repository
	ledger problems.Ledger
	orders orders.Repository
	audit  audit.Repository
	locker EncounterLocker
	logger *zap.SugaredLogger
}

var _ Coordinator = &coordinator{}

type CoordinatorParams struct {
	fx.In

	Repo   Repository
	Ledger problems.Ledger
	Orders orders.Repository
	Audit  audit.Repository
	Locker EncounterLocker
	Logger *zap.SugaredLogger
}

func NewCoordinator(p CoordinatorParams) (Coordinator, error) {
	return &coordinator{
		repo:   p.Repo,
		ledger: p.Ledger,
		orders: p.Orders,
		audit:  p.Audit,
		locker: p.Locker,
		logger: p.Logger,
	}, nil
}

func (c *coordinator) Sign(ctx context.Context, request SignRequest) (*SignResult, error) {
	// Signing waits for in-flight delta processing on the encounter to drain
	// rather than rejecting, so a provider never has to retry a signature.
	release, err := c.locker.Acquire(ctx, request.EncounterId)
	if err != nil {
		return nil, err
	}
	defer release()

	encounter, err := c.repo.Get(ctx, request.EncounterId)
	if err != nil {
		return nil, err
	}
	if encounter.IsSigned() {
		return nil, ErrAlreadySigned
	}

	if request.Note != nil {
		encounter, err = c.repo.UpdateNote(ctx, request.EncounterId, *request.Note)
		if err != nil {
			return nil, fmt.Errorf("error updating encounter note: %w", err)
		}
	}

	failures, err := c.checkRequirements(ctx, encounter)
	if err != nil {
		return nil, err
	}

	if len(failures) > 0 {
		if !request.Force {
			return &SignResult{
				CanSign: false,
				Errors:  failures,
			}, nil
		}
		if err := c.recordOverride(ctx, request, failures); err != nil {
			return nil, err
		}
	}

	signedAt := time.Now()
	signed, err := c.repo.Sign(ctx, request.EncounterId, signedAt)
	if err != nil {
		return nil, err
	}

	if err := c.ledger.FinalizeForEncounter(ctx, request.EncounterId); err != nil {
		return nil, fmt.Errorf("error finalizing visit history: %w", err)
	}

	activated, err := c.orders.ActivateForEncounter(ctx, request.EncounterId)
	if err != nil {
		return nil, fmt.Errorf("error activating orders: %w", err)
	}

	event, err := audit.NewEvent(audit.EventTypeEncounterSigned, audit.EncounterSignedPayload{
		EncounterId: request.EncounterId,
		ProviderId:  request.ProviderId,
	})
	if err != nil {
		return nil, err
	}
	if err := c.audit.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("error recording audit event: %w", err)
	}

	c.logger.Infow("signed encounter",
		"encounterId", request.EncounterId,
		"providerId", request.ProviderId,
		"ordersActivated", activated,
		"forced", request.Force && len(failures) > 0,
	)

	return &SignResult{
		CanSign:   true,
		SignedAt:  &signedAt,
		Encounter: signed,
	}, nil
}

func (c *coordinator) checkRequirements(ctx context.Context, encounter *Encounter) ([]string, error) {
	var failures []string

	if len(strings.TrimSpace(encounter.NoteText)) < minNoteLength {
		failures = append(failures, "encounter note is empty or too short")
	}
	if len(encounter.BillingCodes) == 0 {
		failures = append(failures, "encounter has no billing codes")
	}

	if len(encounter.Diagnoses) == 0 {
		failures = append(failures, "encounter has no diagnoses")
	} else {
		primaries := 0
		for _, d := range encounter.Diagnoses {
			if d.IsPrimary {
				primaries++
			}
		}
		if primaries != 1 {
			failures = append(failures, fmt.Sprintf("encounter must have exactly one primary diagnosis, found %d", primaries))
		}
	}

	// Drafts belonging to this encounter are activated by the signature
	// itself, so only drafts from other encounters block it.
	drafts, err := c.orders.CountDraftsForPatient(ctx, encounter.PatientId.Hex(), encounter.Id.Hex())
	if err != nil {
		return nil, fmt.Errorf("error counting draft orders: %w", err)
	}
	if drafts > 0 {
		failures = append(failures, fmt.Sprintf("patient has %d unresolved draft orders", drafts))
	}

	return failures, nil
}

func (c *coordinator) recordOverride(ctx context.Context, request SignRequest, failures []string) error {
	event, err := audit.NewEvent(audit.EventTypeSignOverride, audit.SignOverridePayload{
		EncounterId:    request.EncounterId,
		ProviderId:     request.ProviderId,
		BypassedErrors: failures,
	})
	if err != nil {
		return err
	}
	if err := c.audit.Create(ctx, event); err != nil {
		return fmt.Errorf("error recording sign override: %w", err)
	}

	c.logger.Warnw("sign requirements bypassed",
		"encounterId", request.EncounterId,
		"providerId", request.ProviderId,
		"bypassedErrors", failures,
	)
	return nil
}
