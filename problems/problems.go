package problems

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrNotFound = errors.New("problem not found")

// ErrImmutableHistory is returned when an append references an encounter whose
// history has already been finalized by signing.
var ErrImmutableHistory = errors.New("visit history for a signed encounter is immutable")

type Status string

const (
	StatusActive    Status = "active"
	StatusChronic   Status = "chronic"
	StatusImproved  Status = "improved"
	StatusWorsening Status = "worsening"
	StatusResolved  Status = "resolved"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusChronic, StatusImproved, StatusWorsening, StatusResolved:
		return true
	}
	return false
}

// OpenStatuses are the statuses a mention is matched against; resolved problems
// are only resurrected explicitly, never by text reconciliation.
func OpenStatuses() []Status {
	return []Status{StatusActive, StatusChronic, StatusImproved, StatusWorsening}
}

type VisitSource string

const (
	VisitSourceDerived VisitSource = "derived-from-text"
	VisitSourceManual  VisitSource = "manual"
)

type MedicalProblem struct {
	Id                 *primitive.ObjectID `bson:"_id,omitempty"`
	PatientId          primitive.ObjectID  `bson:"patientId"`
	ProblemTitle       string              `bson:"problemTitle"`
	CurrentIcd10Code   string              `bson:"currentIcd10Code"`
	ProblemStatus      Status              `bson:"problemStatus"`
	BodySite           string              `bson:"bodySite,omitempty"`
	Laterality         string              `bson:"laterality,omitempty"`
	FirstDiagnosedDate time.Time           `bson:"firstDiagnosedDate"`
	FirstEncounterId   primitive.ObjectID  `bson:"firstEncounterId"`
	CreatedAt          time.Time           `bson:"createdAt"`
	UpdatedAt          time.Time           `bson:"updatedAt"`
}

// VisitEntry is one append-only record of a problem's state at an encounter.
// Entries live in their own collection keyed by problem id and sequence number,
// so appends never rewrite the problem row and signed entries can be guarded at
// the storage layer.
type VisitEntry struct {
	Id            *primitive.ObjectID `bson:"_id,omitempty"`
	ProblemId     primitive.ObjectID  `bson:"problemId"`
	Seq           int                 `bson:"seq"`
	EncounterId   primitive.ObjectID  `bson:"encounterId"`
	Date          time.Time           `bson:"date"`
	StatusAtVisit Status              `bson:"statusAtVisit"`
	NoteExcerpt   string              `bson:"noteExcerpt,omitempty"`
	Source        VisitSource         `bson:"source"`
	Signed        bool                `bson:"signed"`
}

type ChangeLogEntry struct {
	Id          *primitive.ObjectID `bson:"_id,omitempty"`
	ProblemId   primitive.ObjectID  `bson:"problemId"`
	Seq         int                 `bson:"seq"`
	Timestamp   time.Time           `bson:"timestamp"`
	EncounterId primitive.ObjectID  `bson:"encounterId"`
	ProviderId  string              `bson:"providerId"`
	Field       string              `bson:"field"`
	OldValue    string              `bson:"oldValue"`
	NewValue    string              `bson:"newValue"`
	Reasoning   string              `bson:"reasoning,omitempty"`
}


type Repository interface {
	Get(ctx context.Context, problemId string) (*MedicalProblem, error)
	ListForPatient(ctx context.Context, patientId string, statuses []Status) ([]*MedicalProblem, error)
	Create(ctx context.Context, problem MedicalProblem) (*MedicalProblem, error)
	UpdateCanonical(ctx context.Context, problemId string, code string, status Status) (*MedicalProblem, error)

	AppendVisitEntry(ctx context.Context, problemId string, entry VisitEntry) (*VisitEntry, error)
	VisitEntries(ctx context.Context, problemId string) ([]*VisitEntry, error)
	MarkVisitEntriesSigned(ctx context.Context, encounterId string) (int64, error)

	AppendChangeLog(ctx context.Context, problemId string, entry ChangeLogEntry) error
	ChangeLog(ctx context.Context, problemId string) ([]*ChangeLogEntry, error)
}

// EncounterChecker reports whether an encounter has been signed. It is a narrow
// view of the encounters service so the ledger does not depend on it directly.
type EncounterChecker interface {
	IsSigned(ctx context.Context, encounterId string) (bool, error)
}
