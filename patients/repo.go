package patients

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"

	"github.com/chartline-org/chartline/store"
)

const (
	patientsCollectionName = "patients"
)

type Repository interface {
	Service
}

func NewRepository(db *mongo.Database, lifecycle fx.Lifecycle) (Repository, error) {
	repo := &repository{
		collection: db.Collection(patientsCollectionName),
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return repo.Initialize(ctx)
		},
	})

	return repo, nil
}

type repository struct {
	collection *mongo.Collection
}

func (r *repository) Initialize(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "mrn", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "mrn", Value: bson.D{{Key: "$exists", Value: true}}}}).
				SetName("UniqueMrn"),
		},
		{
			Keys: bson.D{
				{Key: "fullName", Value: "text"},
				{Key: "mrn", Value: "text"},
			},
			Options: options.Index().
				SetName("PatientSearch"),
		},
	})
	return err
}

func (r *repository) Get(ctx context.Context, id string) (*Patient, error) {
	objId, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	patient := &Patient{}
	err = r.collection.FindOne(ctx, bson.M{"_id": objId}).Decode(patient)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return patient, nil
}

func (r *repository) List(ctx context.Context, filter *Filter, pagination store.Pagination) ([]*Patient, error) {
	opts := options.Find().
		SetLimit(int64(pagination.Limit)).
		SetSkip(int64(pagination.Offset))

	selector := bson.M{}
	if filter.Mrn != nil {
		selector["mrn"] = filter.Mrn
	}
	if filter.Search != nil {
		selector["$text"] = bson.M{
			"$search": filter.Search,
		}
	}

	cursor, err := r.collection.Find(ctx, selector, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing patients: %w", err)
	}

	var patients []*Patient
	if err = cursor.All(ctx, &patients); err != nil {
		return nil, fmt.Errorf("error decoding patient list: %w", err)
	}

	return patients, nil
}

func (r *repository) Create(ctx context.Context, patient Patient) (*Patient, error) {
	now := time.Now()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, patient)
	if err != nil {
		if store.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateMrn
		}
		return nil, fmt.Errorf("error creating patient: %w", err)
	}

	id := res.InsertedID.(primitive.ObjectID)
	return r.Get(ctx, id.Hex())
}
