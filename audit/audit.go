package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const CollectionName = "audit_events"

// EventType identifies the kind of audit event
type EventType string

const (
	EventTypeEncounterSigned EventType = "encounterSigned"
	EventTypeSignOverride    EventType = "signOverride"
)

// Event is the common envelope for all audit events
type Event struct {
	Id          *primitive.ObjectID `bson:"_id,omitempty"`
	TraceId     string              `bson:"traceId"`
	EventType   EventType           `bson:"eventType"`
	CreatedTime time.Time           `bson:"createdTime"`
	Payload     bson.Raw            `bson:"payload"`
}

// SignOverridePayload records a forced signature together with the
// requirements it bypassed.
type SignOverridePayload struct {
	EncounterId    string   `bson:"encounterId"`
	ProviderId     string   `bson:"providerId"`
	BypassedErrors []string `bson:"bypassedErrors"`
}

type EncounterSignedPayload struct {
	EncounterId string `bson:"encounterId"`
	ProviderId  string `bson:"providerId"`
}


type Repository interface {
	Create(ctx context.Context, event Event) error
	Initialize(ctx context.Context) error
}

// NewEvent creates an Event from a typed payload
func NewEvent(eventType EventType, payload interface{}) (Event, error) {
	raw, err := bson.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("error marshaling audit event payload: %w", err)
	}

	return Event{
		TraceId:     uuid.NewString(),
		EventType:   eventType,
		CreatedTime: time.Now(),
		Payload:     bson.Raw(raw),
	}, nil
}
