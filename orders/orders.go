package orders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderType string

const (
	OrderTypeMedication OrderType = "medication"
	OrderTypeLab        OrderType = "lab"
	OrderTypeImaging    OrderType = "imaging"
	OrderTypeReferral   OrderType = "referral"
)

type OrderStatus string

const (
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusActive is reached only through encounter signing, never at
	// creation time.
	OrderStatusActive OrderStatus = "active"
)

type Order struct {
	Id          *primitive.ObjectID    `bson:"_id,omitempty"`
	PatientId   primitive.ObjectID     `bson:"patientId"`
	EncounterId primitive.ObjectID     `bson:"encounterId"`
	OrderType   OrderType              `bson:"orderType"`
	Payload     map[string]interface{} `bson:"payload"`
	OrderStatus OrderStatus            `bson:"orderStatus"`
	CreatedAt   time.Time              `bson:"createdAt,omitempty"`
	UpdatedAt   time.Time              `bson:"updatedAt,omitempty"`
}

type MedicationPayload struct {
	Name      string `mapstructure:"name"`
	Dose      string `mapstructure:"dose"`
	Frequency string `mapstructure:"frequency"`
	Route     string `mapstructure:"route"`
}

type LabPayload struct {
	TestName  string `mapstructure:"testName"`
	PanelName string `mapstructure:"panelName"`
	Priority  string `mapstructure:"priority"`
}

type ImagingPayload struct {
	StudyType  string `mapstructure:"studyType"`
	Region     string `mapstructure:"region"`
	Indication string `mapstructure:"indication"`
}

type ReferralPayload struct {
	Specialty string `mapstructure:"specialty"`
	Reason    string `mapstructure:"reason"`
}

// DedupKey derives the normalized key under which two independently extracted
// orders are considered the same real-world order. The key is derived on
// demand, never stored.
func (o *Order) DedupKey() string {
	switch o.OrderType {
	case OrderTypeMedication:
		var payload MedicationPayload
		if err := mapstructure.Decode(o.Payload, &payload); err == nil && payload.Name != "" {
			return "medication:" + fold(payload.Name)
		}
	case OrderTypeLab:
		var payload LabPayload
		if err := mapstructure.Decode(o.Payload, &payload); err == nil {
			if payload.TestName != "" {
				return "lab:" + fold(payload.TestName)
			}
			if payload.PanelName != "" {
				return "lab:" + fold(payload.PanelName)
			}
		}
	case OrderTypeImaging:
		var payload ImagingPayload
		if err := mapstructure.Decode(o.Payload, &payload); err == nil && payload.StudyType != "" {
			return "imaging:" + fold(payload.StudyType+" "+payload.Region)
		}
	case OrderTypeReferral:
		var payload ReferralPayload
		if err := mapstructure.Decode(o.Payload, &payload); err == nil && payload.Specialty != "" {
			return "referral:" + fold(payload.Specialty)
		}
	}
	return fmt.Sprintf("%s:%x", o.OrderType, xxhash.Sum64String(serializedPayloadPrefix(o.Payload)))
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

const payloadPrefixLength = 128

// serializedPayloadPrefix renders the payload as sorted key=value pairs so the
// hash does not depend on map iteration order.
func serializedPayloadPrefix(payload map[string]interface{}) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%v;", k, payload[k])
		if sb.Len() >= payloadPrefixLength {
			break
		}
	}
	s := sb.String()
	if len(s) > payloadPrefixLength {
		s = s[:payloadPrefixLength]
	}
	return s
}

type Filter struct {
	EncounterId *string
	PatientId   *string
	Status      *OrderStatus
}


type Repository interface {
	List(ctx context.Context, filter *Filter) ([]*Order, error)
	CreateMany(ctx context.Context, orders []Order) ([]*Order, error)
	// CountDraftsForPatient excludes the given encounter: its own drafts are
	// activated by the signing cascade and must not block it.
	CountDraftsForPatient(ctx context.Context, patientId string, excludeEncounterId string) (int64, error)
	ActivateForEncounter(ctx context.Context, encounterId string) (int64, error)
}
