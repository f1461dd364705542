package test

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chartline-org/chartline/patients"
	"github.com/chartline-org/chartline/pointer"
	"github.com/chartline-org/chartline/store"
	"github.com/chartline-org/chartline/test"
)

func RandomPatient() patients.Patient {
	id := primitive.NewObjectID()
	return patients.Patient{
		Id:        &id,
		FullName:  pointer.FromAny(test.Faker.Person().Name()),
		BirthDate: pointer.FromAny(test.Faker.Time().ISO8601(time.Now())[:10]),
		Sex:       pointer.FromAny([]string{"F", "M"}[test.Rand.Intn(2)]),
		Mrn:       pointer.FromAny(test.Faker.Numerify("#########")),
	}
}

// FakeRepository is an in-memory stand-in for the mongo repository.
type FakeRepository struct {
	mu       sync.Mutex
	patients map[string]patients.Patient
}

var _ patients.Repository = &FakeRepository{}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		patients: make(map[string]patients.Patient),
	}
}

func (f *FakeRepository) Get(ctx context.Context, id string) (*patients.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	patient, ok := f.patients[id]
	if !ok {
		return nil, patients.ErrNotFound
	}
	return &patient, nil
}

func (f *FakeRepository) List(ctx context.Context, filter *patients.Filter, pagination store.Pagination) ([]*patients.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*patients.Patient
	for _, patient := range f.patients {
		p := patient
		if filter != nil && filter.Mrn != nil && (p.Mrn == nil || *p.Mrn != *filter.Mrn) {
			continue
		}
		if filter != nil && filter.Search != nil && p.FullName != nil &&
			!strings.Contains(strings.ToLower(*p.FullName), strings.ToLower(*filter.Search)) {
			continue
		}
		result = append(result, &p)
	}
	return result, nil
}

func (f *FakeRepository) Create(ctx context.Context, patient patients.Patient) (*patients.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if patient.Id == nil {
		id := primitive.NewObjectID()
		patient.Id = &id
	}
	f.patients[patient.Id.Hex()] = patient
	return &patient, nil
}
