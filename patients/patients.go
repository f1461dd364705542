package patients

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chartline-org/chartline/store"
)

var ErrNotFound = errors.New("patient not found")
var ErrDuplicateMrn = errors.New("patient with the same mrn already exists")

type Service interface {
	Get(ctx context.Context, id string) (*Patient, error)
	List(ctx context.Context, filter *Filter, pagination store.Pagination) ([]*Patient, error)
	Create(ctx context.Context, patient Patient) (*Patient, error)
}

func NewService(repo Repository) (Service, error) {
	return repo, nil
}

type Patient struct {
	Id        *primitive.ObjectID `bson:"_id,omitempty"`
	FullName  *string             `bson:"fullName,omitempty"`
	BirthDate *string             `bson:"birthDate,omitempty"`
	Sex       *string             `bson:"sex,omitempty"`
	Mrn       *string             `bson:"mrn,omitempty"`
	CreatedAt time.Time           `bson:"createdAt,omitempty"`
	UpdatedAt time.Time           `bson:"updatedAt,omitempty"`
}

type Filter struct {
	Mrn    *string
	Search *string
}

const birthDateFormat = "2006-01-02"

// Age returns the patient's age in whole years, or 0 when the birth date is
// absent or unparseable.
func (p *Patient) Age() int {
	if p.BirthDate == nil {
		return 0
	}
	dob, err := time.Parse(birthDateFormat, *p.BirthDate)
	if err != nil {
		return 0
	}
	age := 0
	for dob.AddDate(age+1, 0, 0).Before(time.Now()) {
		age++
	}
	return age
}

func (p *Patient) SexOrUnknown() string {
	if p.Sex == nil {
		return "unknown"
	}
	return *p.Sex
}
