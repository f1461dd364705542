package encounters

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chartline-org/chartline/problems"
)

var ErrNotFound = errors.New("encounter not found")
var ErrAlreadySigned = errors.New("encounter is already signed")
var ErrInvalidTransition = errors.New("invalid encounter status transition")

type EncounterStatus string

const (
	StatusInProgress    EncounterStatus = "in_progress"
	StatusPendingReview EncounterStatus = "pending_review"
	StatusCompleted     EncounterStatus = "completed"
	StatusSigned        EncounterStatus = "signed"
)

var statusRank = map[EncounterStatus]int{
	StatusInProgress:    0,
	StatusPendingReview: 1,
	StatusCompleted:     2,
	StatusSigned:        3,
}

// CanTransition allows forward movement through the lifecycle only. Signed is
// terminal.
func CanTransition(from, to EncounterStatus) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == StatusSigned {
		return false
	}
	return toRank > fromRank
}

type Diagnosis struct {
	Code        string `bson:"code"`
	Description string `bson:"description,omitempty"`
	IsPrimary   bool   `bson:"isPrimary"`
}

type Encounter struct {
	Id              *primitive.ObjectID `bson:"_id,omitempty"`
	PatientId       primitive.ObjectID  `bson:"patientId"`
	ProviderId      string              `bson:"providerId"`
	EncounterStatus EncounterStatus     `bson:"encounterStatus"`
	NoteText        string              `bson:"noteText,omitempty"`
	BillingCodes    []string            `bson:"billingCodes,omitempty"`
	Diagnoses       []Diagnosis         `bson:"diagnoses,omitempty"`
	SignedAt        *time.Time          `bson:"signedAt,omitempty"`
	CreatedAt       time.Time           `bson:"createdAt,omitempty"`
	UpdatedAt       time.Time           `bson:"updatedAt,omitempty"`
}

func (e *Encounter) IsSigned() bool {
	return e.EncounterStatus == StatusSigned
}


type Repository interface {
	Get(ctx context.Context, encounterId string) (*Encounter, error)
	Create(ctx context.Context, encounter Encounter) (*Encounter, error)
	UpdateStatus(ctx context.Context, encounterId string, status EncounterStatus) (*Encounter, error)
	UpdateNote(ctx context.Context, encounterId string, note string) (*Encounter, error)
	Sign(ctx context.Context, encounterId string, signedAt time.Time) (*Encounter, error)
}

// Service is the read surface other packages depend on; it also satisfies
// problems.EncounterChecker.
type Service interface {
	Get(ctx context.Context, encounterId string) (*Encounter, error)
	Create(ctx context.Context, encounter Encounter) (*Encounter, error)
	IsSigned(ctx context.Context, encounterId string) (bool, error)
}

type service struct {
	repo Repository
}

var _ Service = &service{}

func NewService(repo Repository) (Service, error) {
	return &service{repo: repo}, nil
}

// NewEncounterChecker exposes the service under the narrow interface the
// problems ledger depends on.
func NewEncounterChecker(service Service) problems.EncounterChecker {
	return service
}

func (s *service) Get(ctx context.Context, encounterId string) (*Encounter, error) {
	return s.repo.Get(ctx, encounterId)
}

func (s *service) Create(ctx context.Context, encounter Encounter) (*Encounter, error) {
	if encounter.EncounterStatus == "" {
		encounter.EncounterStatus = StatusInProgress
	}
	return s.repo.Create(ctx, encounter)
}

func (s *service) IsSigned(ctx context.Context, encounterId string) (bool, error) {
	encounter, err := s.repo.Get(ctx, encounterId)
	if err != nil {
		return false, err
	}
	return encounter.IsSigned(), nil
}
