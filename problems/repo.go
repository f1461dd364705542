package problems

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
	problemsCollectionName  = "medical_problems"
	visitsCollectionName    = "visit_entries"
	changeLogCollectionName = "change_log_entries"
)

func NewRepository(db *mongo.Database, lifecycle fx.Lifecycle) (Repository, error) {
	repo := &repository{
		problems:  db.Collection(problemsCollectionName),
		visits:    db.Collection(visitsCollectionName),
		changeLog: db.Collection(changeLogCollectionName),
	}

	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return repo.Initialize(ctx)
		},
	})

	return repo, nil
}

type repository struct {
	problems  *mongo.Collection
	visits    *mongo.Collection
	changeLog *mongo.Collection
}

func (r *repository) Initialize(ctx context.Context) error {
	_, err := r.problems.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "patientId", Value: 1},
				{Key: "problemStatus", Value: 1},
			},
			Options: options.Index().SetName("PatientProblems"),
		},
	})
	if err != nil {
		return err
	}

	_, err = r.visits.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "problemId", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetName("UniqueVisitSeq"),
		},
		{
			Keys: bson.D{
				{Key: "encounterId", Value: 1},
			},
			Options: options.Index().SetName("VisitsByEncounter"),
		},
	})
	if err != nil {
		return err
	}

	_, err = r.changeLog.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "problemId", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetName("UniqueChangeLogSeq"),
		},
	})
	return err
}

func (r *repository) Get(ctx context.Context, problemId string) (*MedicalProblem, error) {
	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return nil, ErrNotFound
	}

	problem := &MedicalProblem{}
	err = r.problems.FindOne(ctx, bson.M{"_id": objId}).Decode(problem)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return problem, nil
}

func (r *repository) ListForPatient(ctx context.Context, patientId string, statuses []Status) ([]*MedicalProblem, error) {
	patientObjId, err := primitive.ObjectIDFromHex(patientId)
	if err != nil {
		return nil, fmt.Errorf("invalid patient id %q", patientId)
	}

	selector := bson.M{"patientId": patientObjId}
	if len(statuses) > 0 {
		selector["problemStatus"] = bson.M{"$in": statuses}
	}

	sort := store.Sort{Attribute: "updatedAt", Ascending: false}
	opts := options.Find().SetSort(bson.D{{Key: sort.Attribute, Value: sort.Order()}})
	cursor, err := r.problems.Find(ctx, selector, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing problems: %w", err)
	}

	var problems []*MedicalProblem
	if err = cursor.All(ctx, &problems); err != nil {
		return nil, fmt.Errorf("error decoding problem list: %w", err)
	}

	return problems, nil
}

func (r *repository) Create(ctx context.Context, problem MedicalProblem) (*MedicalProblem, error) {
	now := time.Now()
	problem.CreatedAt = now
	problem.UpdatedAt = now

	res, err := r.problems.InsertOne(ctx, problem)
	if err != nil {
		return nil, fmt.Errorf("error creating problem: %w", err)
	}

	id := res.InsertedID.(primitive.ObjectID)
	return r.Get(ctx, id.Hex())
}

func (r *repository) UpdateCanonical(ctx context.Context, problemId string, code string, status Status) (*MedicalProblem, error) {
	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return nil, ErrNotFound
	}

	update := bson.M{
		"$set": bson.M{
			"currentIcd10Code": code,
			"problemStatus":    status,
			"updatedAt":        time.Now(),
		},
	}
	err = r.problems.FindOneAndUpdate(ctx, bson.M{"_id": objId}, update).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error updating problem: %w", err)
	}

	return r.Get(ctx, problemId)
}

func (r *repository) AppendVisitEntry(ctx context.Context, problemId string, entry VisitEntry) (*VisitEntry, error) {
	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return nil, ErrNotFound
	}
	entry.ProblemId = objId

	// The unique (problemId, seq) index turns a lost race into a retryable
	// duplicate key error instead of an out-of-order history.
	for attempt := 0; attempt < 3; attempt++ {
		seq, err := r.nextSeq(ctx, r.visits, objId)
		if err != nil {
			return nil, err
		}
		entry.Seq = seq
		entry.Id = nil

		res, err := r.visits.InsertOne(ctx, entry)
		if err == nil {
			id := res.InsertedID.(primitive.ObjectID)
			entry.Id = &id
			return &entry, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("error appending visit entry: %w", err)
		}
	}
	return nil, fmt.Errorf("error appending visit entry: sequence contention on problem %s", problemId)
}

func (r *repository) VisitEntries(ctx context.Context, problemId string) ([]*VisitEntry, error) {
	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	cursor, err := r.visits.Find(ctx, bson.M{"problemId": objId}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing visit entries: %w", err)
	}

	var entries []*VisitEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("error decoding visit entries: %w", err)
	}

	return entries, nil
}

func (r *repository) MarkVisitEntriesSigned(ctx context.Context, encounterId string) (int64, error) {
	objId, err := primitive.ObjectIDFromHex(encounterId)
	if err != nil {
		return 0, fmt.Errorf("invalid encounter id %q", encounterId)
	}

	res, err := r.visits.UpdateMany(ctx,
		bson.M{"encounterId": objId, "signed": false},
		bson.M{"$set": bson.M{"signed": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("error signing visit entries: %w", err)
	}

	return res.ModifiedCount, nil
}

func (r *repository) AppendChangeLog(ctx context.Context, problemId string, entry ChangeLogEntry) error {
	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return ErrNotFound
	}
	entry.ProblemId = objId

	for attempt := 0; attempt < 3; attempt++ {
		seq, err := r.nextSeq(ctx, r.changeLog, objId)
		if err != nil {
			return err
		}
		entry.Seq = seq
		entry.Id = nil

		_, err = r.changeLog.InsertOne(ctx, entry)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("error appending change log entry: %w", err)
		}
	}
	return fmt.Errorf("error appending change log entry: sequence contention on problem %s", problemId)
}

func (r *repository) ChangeLog(ctx context.Context, problemId string) ([]*ChangeLogEntry, error) {
	objId, err := primitive.ObjectIDFromHex(problemId)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cursor, err := r.changeLog.Find(ctx, bson.M{"problemId": objId}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing change log: %w", err)
	}

	var entries []*ChangeLogEntry
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("error decoding change log: %w", err)
	}

	return entries, nil
}

func (r *repository) nextSeq(ctx context.Context, collection *mongo.Collection, problemId primitive.ObjectID) (int, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}).SetProjection(bson.M{"seq": 1})

	var last struct {
		Seq int `bson:"seq"`
	}
	err := collection.FindOne(ctx, bson.M{"problemId": problemId}, opts).Decode(&last)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error finding last sequence number: %w", err)
	}

	return last.Seq + 1, nil
}
