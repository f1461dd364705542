package orders

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

const (
	ordersCollectionName = "orders"
)

func NewRepository(db *mongo.Database, lifecycle fx.Lifecycle) (Repository, error) {
	repo := &repository{
		collection: db.Collection(ordersCollectionName),
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
				{Key: "encounterId", Value: 1},
				{Key: "orderStatus", Value: 1},
			},
			Options: options.Index().SetName("OrdersByEncounter"),
		},
		{
			Keys: bson.D{
				{Key: "patientId", Value: 1},
				{Key: "orderStatus", Value: 1},
			},
			Options: options.Index().SetName("OrdersByPatient"),
		},
	})
	return err
}

func (r *repository) List(ctx context.Context, filter *Filter) ([]*Order, error) {
	selector := bson.M{}
	if filter.EncounterId != nil {
		objId, err := primitive.ObjectIDFromHex(*filter.EncounterId)
		if err != nil {
			return nil, fmt.Errorf("invalid encounter id %q", *filter.EncounterId)
		}
		selector["encounterId"] = objId
	}
	if filter.PatientId != nil {
		objId, err := primitive.ObjectIDFromHex(*filter.PatientId)
		if err != nil {
			return nil, fmt.Errorf("invalid patient id %q", *filter.PatientId)
		}
		selector["patientId"] = objId
	}
	if filter.Status != nil {
		selector["orderStatus"] = *filter.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.collection.Find(ctx, selector, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing orders: %w", err)
	}

	var orders []*Order
	if err = cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("error decoding order list: %w", err)
	}

	return orders, nil
}

func (r *repository) CreateMany(ctx context.Context, orders []Order) ([]*Order, error) {
	if len(orders) == 0 {
		return nil, nil
	}

	now := time.Now()
	documents := make([]interface{}, 0, len(orders))
	for i := range orders {
		orders[i].Id = nil
		orders[i].OrderStatus = OrderStatusDraft
		orders[i].CreatedAt = now
		orders[i].UpdatedAt = now
		documents = append(documents, orders[i])
	}

	res, err := r.collection.InsertMany(ctx, documents)
	if err != nil {
		return nil, fmt.Errorf("error creating orders: %w", err)
	}

	created := make([]*Order, 0, len(res.InsertedIDs))
	for i, insertedId := range res.InsertedIDs {
		id := insertedId.(primitive.ObjectID)
		order := orders[i]
		order.Id = &id
		created = append(created, &order)
	}
	return created, nil
}

func (r *repository) CountDraftsForPatient(ctx context.Context, patientId string, excludeEncounterId string) (int64, error) {
	objId, err := primitive.ObjectIDFromHex(patientId)
	if err != nil {
		return 0, fmt.Errorf("invalid patient id %q", patientId)
	}

	selector := bson.M{
		"patientId":   objId,
		"orderStatus": OrderStatusDraft,
	}
	if excludeEncounterId != "" {
		encounterObjId, err := primitive.ObjectIDFromHex(excludeEncounterId)
		if err != nil {
			return 0, fmt.Errorf("invalid encounter id %q", excludeEncounterId)
		}
		selector["encounterId"] = bson.M{"$ne": encounterObjId}
	}

	count, err := r.collection.CountDocuments(ctx, selector)
	if err != nil {
		return 0, fmt.Errorf("error counting draft orders: %w", err)
	}
	return count, nil
}

func (r *repository) ActivateForEncounter(ctx context.Context, encounterId string) (int64, error) {
	objId, err := primitive.ObjectIDFromHex(encounterId)
	if err != nil {
		return 0, fmt.Errorf("invalid encounter id %q", encounterId)
	}

	res, err := r.collection.UpdateMany(ctx,
		bson.M{
			"encounterId": objId,
			"orderStatus": OrderStatusDraft,
		},
		bson.M{"$set": bson.M{
			"orderStatus": OrderStatusActive,
			"updatedAt":   time.Now(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("error activating orders: %w", err)
	}
	return res.ModifiedCount, nil
}
