package encounters

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

const encountersCollectionName = "encounters"

func NewRepository(db *mongo.Database, lifecycle fx.Lifecycle) (Repository, error) {
	repo := &repository{
		collection: db.Collection(encountersCollectionName),
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
				{Key: "patientId", Value: 1},
				{Key: "encounterStatus", Value: 1},
			},
			Options: options.Index().SetName("PatientEncounters"),
		},
	})
	return err
}

func (r *repository) Get(ctx context.Context, encounterId string) (*Encounter, error) {
	objId, err := primitive.ObjectIDFromHex(encounterId)
	if err != nil {
		return nil, ErrNotFound
	}

	encounter := &Encounter{}
	err = r.collection.FindOne(ctx, bson.M{"_id": objId}).Decode(encounter)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	return encounter, nil
}

func (r *repository) Create(ctx context.Context, encounter Encounter) (*Encounter, error) {
	now := time.Now()
	encounter.CreatedAt = now
	encounter.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, encounter)
	if err != nil {
		return nil, fmt.Errorf("error creating encounter: %w", err)
	}

	id := res.InsertedID.(primitive.ObjectID)
	return r.Get(ctx, id.Hex())
}

func (r *repository) UpdateStatus(ctx context.Context, encounterId string, status EncounterStatus) (*Encounter, error) {
	current, err := r.Get(ctx, encounterId)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.EncounterStatus, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.EncounterStatus, status)
	}

	update := bson.M{
		"$set": bson.M{
			"encounterStatus": status,
			"updatedAt":       time.Now(),
		},
	}
	// The status guard in the selector keeps a concurrent transition from
	// being overwritten with a stale one.
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": *current.Id, "encounterStatus": current.EncounterStatus},
		update,
	).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("error updating encounter status: %w", err)
	}

	return r.Get(ctx, encounterId)
}

func (r *repository) UpdateNote(ctx context.Context, encounterId string, note string) (*Encounter, error) {
	objId, err := primitive.ObjectIDFromHex(encounterId)
	if err != nil {
		return nil, ErrNotFound
	}

	update := bson.M{
		"$set": bson.M{
			"noteText":  note,
			"updatedAt": time.Now(),
		},
	}
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objId, "encounterStatus": bson.M{"$ne": StatusSigned}},
		update,
	).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error updating encounter note: %w", err)
	}

	return r.Get(ctx, encounterId)
}

func (r *repository) Sign(ctx context.Context, encounterId string, signedAt time.Time) (*Encounter, error) {
	objId, err := primitive.ObjectIDFromHex(encounterId)
	if err != nil {
		return nil, ErrNotFound
	}

	update := bson.M{
		"$set": bson.M{
			"encounterStatus": StatusSigned,
			"signedAt":        signedAt,
			"updatedAt":       time.Now(),
		},
	}
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objId, "encounterStatus": bson.M{"$ne": StatusSigned}},
		update,
	).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			existing, getErr := r.Get(ctx, encounterId)
			if getErr == nil && existing.IsSigned() {
				return nil, ErrAlreadySigned
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error signing encounter: %w", err)
	}

	return r.Get(ctx, encounterId)
}
