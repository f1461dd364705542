package test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chartline-org/chartline/encounters"
)

func RandomEncounter(patientId primitive.ObjectID) encounters.Encounter {
	return encounters.Encounter{
		PatientId:       patientId,
		ProviderId:      primitive.NewObjectID().Hex(),
		EncounterStatus: encounters.StatusInProgress,
	}
}

// SignableEncounter satisfies every signing requirement.
func SignableEncounter(patientId primitive.ObjectID) encounters.Encounter {
	encounter := RandomEncounter(patientId)
	encounter.NoteText = "Patient seen today for routine follow up of chronic conditions."
	encounter.BillingCodes = []string{"99213"}
	encounter.Diagnoses = []encounters.Diagnosis{
		{Code: "I10", Description: "Essential hypertension", IsPrimary: true},
	}
	return encounter
}

// FakeRepository is an in-memory stand-in for the mongo repository.
type FakeRepository struct {
	mu         sync.Mutex
	encounters map[string]*encounters.Encounter
}

var _ encounters.Repository = &FakeRepository{}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		encounters: map[string]*encounters.Encounter{},
	}
}

func (f *FakeRepository) Get(ctx context.Context, encounterId string) (*encounters.Encounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	encounter, ok := f.encounters[encounterId]
	if !ok {
		return nil, encounters.ErrNotFound
	}
	clone := *encounter
	return &clone, nil
}

func (f *FakeRepository) Create(ctx context.Context, encounter encounters.Encounter) (*encounters.Encounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := primitive.NewObjectID()
	encounter.Id = &id
	encounter.CreatedAt = time.Now()
	encounter.UpdatedAt = time.Now()
	if encounter.EncounterStatus == "" {
		encounter.EncounterStatus = encounters.StatusInProgress
	}
	f.encounters[id.Hex()] = &encounter

	clone := encounter
	return &clone, nil
}

func (f *FakeRepository) UpdateStatus(ctx context.Context, encounterId string, status encounters.EncounterStatus) (*encounters.Encounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	encounter, ok := f.encounters[encounterId]
	if !ok {
		return nil, encounters.ErrNotFound
	}
	if !encounters.CanTransition(encounter.EncounterStatus, status) {
		return nil, fmt.Errorf("%w: %s -> %s", encounters.ErrInvalidTransition, encounter.EncounterStatus, status)
	}
	encounter.EncounterStatus = status
	encounter.UpdatedAt = time.Now()

	clone := *encounter
	return &clone, nil
}

func (f *FakeRepository) UpdateNote(ctx context.Context, encounterId string, note string) (*encounters.Encounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	encounter, ok := f.encounters[encounterId]
	if !ok || encounter.EncounterStatus == encounters.StatusSigned {
		return nil, encounters.ErrNotFound
	}
	encounter.NoteText = note
	encounter.UpdatedAt = time.Now()

	clone := *encounter
	return &clone, nil
}

func (f *FakeRepository) Sign(ctx context.Context, encounterId string, signedAt time.Time) (*encounters.Encounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	encounter, ok := f.encounters[encounterId]
	if !ok {
		return nil, encounters.ErrNotFound
	}
	if encounter.EncounterStatus == encounters.StatusSigned {
		return nil, encounters.ErrAlreadySigned
	}
	encounter.EncounterStatus = encounters.StatusSigned
	encounter.SignedAt = &signedAt
	encounter.UpdatedAt = time.Now()

	clone := *encounter
	return &clone, nil
}
