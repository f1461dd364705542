package test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chartline-org/chartline/problems"
	"github.com/chartline-org/chartline/test"
)

func RandomProblem(patientId primitive.ObjectID) problems.MedicalProblem {
	id := primitive.NewObjectID()
	return problems.MedicalProblem{
		Id:                 &id,
		PatientId:          patientId,
		ProblemTitle:       test.Faker.Lorem().Sentence(2),
		CurrentIcd10Code:   strings.ToUpper(test.Faker.Letter()) + test.Faker.Numerify("##.#"),
		ProblemStatus:      problems.StatusActive,
		FirstDiagnosedDate: time.Now().AddDate(-1, 0, 0),
		FirstEncounterId:   primitive.NewObjectID(),
		CreatedAt:          time.Now().AddDate(-1, 0, 0),
		UpdatedAt:          time.Now().AddDate(0, -1, 0),
	}
}

// FakeRepository is an in-memory stand-in for the mongo repository. The
// optional hooks let suites inject persistence failures for specific items.
type FakeRepository struct {
	mu        sync.Mutex
	problems  map[string]problems.MedicalProblem
	visits    map[string][]problems.VisitEntry
	changeLog map[string][]problems.ChangeLogEntry

	CreateHook      func(problem *problems.MedicalProblem) error
	AppendVisitHook func(problemId string) error
}

var _ problems.Repository = &FakeRepository{}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{
		problems:  make(map[string]problems.MedicalProblem),
		visits:    make(map[string][]problems.VisitEntry),
		changeLog: make(map[string][]problems.ChangeLogEntry),
	}
}

func (f *FakeRepository) Seed(problem problems.MedicalProblem) *problems.MedicalProblem {
	f.mu.Lock()
	defer f.mu.Unlock()

	if problem.Id == nil {
		id := primitive.NewObjectID()
		problem.Id = &id
	}
	f.problems[problem.Id.Hex()] = problem
	return &problem
}

func (f *FakeRepository) Get(ctx context.Context, problemId string) (*problems.MedicalProblem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	problem, ok := f.problems[problemId]
	if !ok {
		return nil, problems.ErrNotFound
	}
	return &problem, nil
}

func (f *FakeRepository) ListForPatient(ctx context.Context, patientId string, statuses []problems.Status) ([]*problems.MedicalProblem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*problems.MedicalProblem
	for _, problem := range f.problems {
		p := problem
		if p.PatientId.Hex() != patientId {
			continue
		}
		if len(statuses) > 0 && !containsStatus(statuses, p.ProblemStatus) {
			continue
		}
		result = append(result, &p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (f *FakeRepository) Create(ctx context.Context, problem problems.MedicalProblem) (*problems.MedicalProblem, error) {
	if f.CreateHook != nil {
		if err := f.CreateHook(&problem); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	id := primitive.NewObjectID()
	problem.Id = &id
	now := time.Now()
	problem.CreatedAt = now
	problem.UpdatedAt = now
	f.problems[id.Hex()] = problem
	return &problem, nil
}

func (f *FakeRepository) UpdateCanonical(ctx context.Context, problemId string, code string, status problems.Status) (*problems.MedicalProblem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	problem, ok := f.problems[problemId]
	if !ok {
		return nil, problems.ErrNotFound
	}
	problem.CurrentIcd10Code = code
	problem.ProblemStatus = status
	problem.UpdatedAt = time.Now()
	f.problems[problemId] = problem
	return &problem, nil
}

func (f *FakeRepository) AppendVisitEntry(ctx context.Context, problemId string, entry problems.VisitEntry) (*problems.VisitEntry, error) {
	if f.AppendVisitHook != nil {
		if err := f.AppendVisitHook(problemId); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.problems[problemId]; !ok {
		return nil, problems.ErrNotFound
	}

	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return nil, problems.ErrNotFound
	}

	id := primitive.NewObjectID()
	entry.Id = &id
	entry.ProblemId = objId
	entry.Seq = len(f.visits[problemId])
	f.visits[problemId] = append(f.visits[problemId], entry)
	return &entry, nil
}

func (f *FakeRepository) VisitEntries(ctx context.Context, problemId string) ([]*problems.VisitEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.visits[problemId]
	result := make([]*problems.VisitEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		result = append(result, &entry)
	}
	return result, nil
}

func (f *FakeRepository) MarkVisitEntriesSigned(ctx context.Context, encounterId string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for problemId, entries := range f.visits {
		for i, entry := range entries {
			if entry.EncounterId.Hex() == encounterId && !entry.Signed {
				entries[i].Signed = true
				count++
			}
		}
		f.visits[problemId] = entries
	}
	return count, nil
}

func (f *FakeRepository) AppendChangeLog(ctx context.Context, problemId string, entry problems.ChangeLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.problems[problemId]; !ok {
		return problems.ErrNotFound
	}

	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return problems.ErrNotFound
	}

	id := primitive.NewObjectID()
	entry.Id = &id
	entry.ProblemId = objId
	entry.Seq = len(f.changeLog[problemId])
	f.changeLog[problemId] = append(f.changeLog[problemId], entry)
	return nil
}

func (f *FakeRepository) ChangeLog(ctx context.Context, problemId string) ([]*problems.ChangeLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries := f.changeLog[problemId]
	result := make([]*problems.ChangeLogEntry, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		result = append(result, &entry)
	}
	return result, nil
}

func containsStatus(statuses []problems.Status, status problems.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// FakeEncounterChecker reports signed state from a static map.
type FakeEncounterChecker struct {
	mu     sync.Mutex
	signed map[string]bool
}

var _ problems.EncounterChecker = &FakeEncounterChecker{}

func NewFakeEncounterChecker() *FakeEncounterChecker {
	return &FakeEncounterChecker{
		signed: make(map[string]bool),
	}
}

func (f *FakeEncounterChecker) SetSigned(encounterId string, signed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signed[encounterId] = signed
}

func (f *FakeEncounterChecker) IsSigned(ctx context.Context, encounterId string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signed[encounterId], nil
}
