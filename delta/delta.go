// Package delta turns an updated note text into reconciled problem history and
// merged draft orders for a single encounter.
package delta

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chartline-org/chartline/encounters"
	errs "github.com/chartline-org/chartline/errors"
	"github.com/chartline-org/chartline/extractor"
	"github.com/chartline-org/chartline/orders"
	"github.com/chartline-org/chartline/patients"
	"github.com/chartline-org/chartline/problems"
)

type ProcessRequest struct {
	PatientId   string
	EncounterId string
	Text        string
	ProviderId  string
	NoteDate    time.Time
}

// Summary is always returned when processing ran, even when individual
// mentions or orders failed to persist.
type Summary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Mentioned int `json:"mentioned"`
	Discarded int `json:"discarded"`

	AffectedProblemIds []string            `json:"affectedProblemIds"`
	OrdersAdded        int                 `json:"ordersAdded"`
	Warnings           []string            `json:"warnings,omitempty"`
	Errors             []problems.ItemError `json:"errors,omitempty"`
	Elapsed            time.Duration       `json:"elapsed"`
}

type Service interface {
	Process(ctx context.Context, request ProcessRequest) (*Summary, error)
}

type service struct {
	extractor  extractor.Extractor
	contexts   patients.ContextLoader
	reconciler problems.Reconciler
	orders     orders.Repository
	encounters encounters.Service
	locker     encounters.EncounterLocker
	logger     *zap.SugaredLogger
}

var _ Service = &service{}

type ServiceParams struct {
	fx.In

	Extractor  extractor.Extractor
	Contexts   patients.ContextLoader
	Reconciler problems.Reconciler
	Orders     orders.Repository
	Encounters encounters.Service
	Locker     encounters.EncounterLocker
	Logger     *zap.SugaredLogger
}

func NewService(p ServiceParams) (Service, error) {
	return &service{
		extractor:  p.Extractor,
		contexts:   p.Contexts,
		reconciler: p.Reconciler,
		orders:     p.Orders,
		encounters: p.Encounters,
		locker:     p.Locker,
		logger:     p.Logger,
	}, nil
}

func (s *service) Process(ctx context.Context, request ProcessRequest) (*Summary, error) {
	start := time.Now()

	if err := s.validate(ctx, &request); err != nil {
		return nil, err
	}

	// Overlapping calls for the same encounter would double-append visit
	// entries, so a busy encounter is rejected rather than queued. Distinct
	// encounters proceed fully in parallel.
	release, err := s.locker.TryAcquire(request.EncounterId)
	if err != nil {
		return nil, fmt.Errorf("%w: delta processing already running for encounter %s", errs.Conflict, request.EncounterId)
	}
	defer release()

	patientContext, err := s.contexts.Load(ctx, request.PatientId)
	if err != nil {
		return nil, fmt.Errorf("error loading patient context: %w", err)
	}

	patientId, _ := primitive.ObjectIDFromHex(request.PatientId)
	encounterId, _ := primitive.ObjectIDFromHex(request.EncounterId)

	summary := &Summary{}
	var mu sync.Mutex

	// The two legs read the same text but write to disjoint stores, so they
	// run concurrently and converge before the summary is built.
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		result, err := s.extractor.Extract(groupCtx, request.Text, patientContext)
		if err != nil {
			return fmt.Errorf("error extracting problem mentions: %w", err)
		}

		reconciled := s.reconciler.Reconcile(groupCtx, problems.ReconcileParams{
			PatientId:   patientId,
			EncounterId: encounterId,
			ProviderId:  request.ProviderId,
			NoteDate:    request.NoteDate,
			Mentions:    result.Mentions,
		})

		mu.Lock()
		defer mu.Unlock()
		summary.Created = reconciled.Created
		summary.Updated = reconciled.Updated
		summary.Mentioned = reconciled.Mentioned
		summary.Discarded = reconciled.Discarded
		summary.AffectedProblemIds = reconciled.AffectedProblemIds
		summary.Errors = append(summary.Errors, reconciled.Errors...)
		summary.Warnings = append(summary.Warnings, result.Warnings...)
		return nil
	})

	group.Go(func() error {
		result, err := s.extractor.Extract(groupCtx, request.Text, patientContext)
		if err != nil {
			return fmt.Errorf("error extracting orders: %w", err)
		}

		added, err := s.persistOrders(groupCtx, patientId, encounterId, result.Orders)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		summary.OrdersAdded = added
		return nil
	})

	if err := group.Wait(); err != nil {
		return nil, err
	}

	summary.Elapsed = time.Since(start)
	s.logger.Infow("processed delta",
		"patientId", request.PatientId,
		"encounterId", request.EncounterId,
		"created", summary.Created,
		"updated", summary.Updated,
		"mentioned", summary.Mentioned,
		"discarded", summary.Discarded,
		"ordersAdded", summary.OrdersAdded,
		"errors", len(summary.Errors),
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

func (s *service) validate(ctx context.Context, request *ProcessRequest) error {
	if strings.TrimSpace(request.Text) == "" {
		return fmt.Errorf("%w: text is required", errs.BadRequest)
	}
	if _, err := primitive.ObjectIDFromHex(request.PatientId); err != nil {
		return fmt.Errorf("%w: invalid patient id %q", errs.BadRequest, request.PatientId)
	}
	if _, err := primitive.ObjectIDFromHex(request.EncounterId); err != nil {
		return fmt.Errorf("%w: invalid encounter id %q", errs.BadRequest, request.EncounterId)
	}
	if request.NoteDate.IsZero() {
		request.NoteDate = time.Now()
	}

	encounter, err := s.encounters.Get(ctx, request.EncounterId)
	if err != nil {
		if err == encounters.ErrNotFound {
			return fmt.Errorf("%w: encounter %s", errs.NotFound, request.EncounterId)
		}
		return err
	}
	if encounter.PatientId.Hex() != request.PatientId {
		return fmt.Errorf("%w: encounter %s does not belong to patient %s", errs.BadRequest, request.EncounterId, request.PatientId)
	}
	if encounter.IsSigned() {
		return fmt.Errorf("%w: encounter %s is signed", errs.BadRequest, request.EncounterId)
	}
	return nil
}

// persistOrders merges newly extracted candidates against the drafts already
// stored for the encounter. Existing drafts win on a key conflict, so
// re-processing the same text never double-books an order.
func (s *service) persistOrders(ctx context.Context, patientId, encounterId primitive.ObjectID, candidates []extractor.OrderCandidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	encounterHex := encounterId.Hex()
	draft := orders.OrderStatusDraft
	existing, err := s.orders.List(ctx, &orders.Filter{EncounterId: &encounterHex, Status: &draft})
	if err != nil {
		return 0, fmt.Errorf("error listing draft orders: %w", err)
	}

	fast := make([]orders.Order, 0, len(existing))
	for _, order := range existing {
		fast = append(fast, *order)
	}

	thorough := make([]orders.Order, 0, len(candidates))
	for _, candidate := range candidates {
		thorough = append(thorough, orders.Order{
			PatientId:   patientId,
			EncounterId: encounterId,
			OrderType:   orders.OrderType(candidate.OrderType),
			Payload:     candidate.Payload,
			OrderStatus: orders.OrderStatusDraft,
		})
	}

	merged := orders.Merge(fast, thorough)

	toCreate := make([]orders.Order, 0, merged.FromThorough)
	for _, order := range merged.Orders {
		if order.Id == nil {
			toCreate = append(toCreate, order)
		}
	}
	if len(toCreate) == 0 {
		return 0, nil
	}

	created, err := s.orders.CreateMany(ctx, toCreate)
	if err != nil {
		return len(created), fmt.Errorf("error creating orders: %w", err)
	}
	return len(created), nil
}
