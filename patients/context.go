package patients

import (
	"context"

	"github.com/chartline-org/chartline/extractor"
	"github.com/chartline-org/chartline/problems"
)

// ContextLoader assembles the demographic and problem-list context sent to the
// extractor with every note.
type ContextLoader interface {
	Load(ctx context.Context, patientId string) (extractor.PatientContext, error)
}

type contextLoader struct {
	patients Service
	problems problems.Repository
}

var _ ContextLoader = &contextLoader{}

func NewContextLoader(patients Service, problemsRepo problems.Repository) (ContextLoader, error) {
	return &contextLoader{
		patients: patients,
		problems: problemsRepo,
	}, nil
}

func (c *contextLoader) Load(ctx context.Context, patientId string) (extractor.PatientContext, error) {
	patient, err := c.patients.Get(ctx, patientId)
	if err != nil {
		return extractor.PatientContext{}, err
	}

	open, err := c.problems.ListForPatient(ctx, patientId, problems.OpenStatuses())
	if err != nil {
		return extractor.PatientContext{}, err
	}

	refs := make([]extractor.ProblemRef, 0, len(open))
	for _, problem := range open {
		refs = append(refs, extractor.ProblemRef{
			Title:     problem.ProblemTitle,
			Icd10Code: problem.CurrentIcd10Code,
		})
	}

	return extractor.PatientContext{
		Age:            patient.Age(),
		Sex:            patient.SexOrUnknown(),
		ActiveProblems: refs,
	}, nil
}
