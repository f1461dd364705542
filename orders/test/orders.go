package test

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/chartline-org/chartline/orders"
)

func MedicationOrder(patientId, encounterId primitive.ObjectID, name string) orders.Order {
	return orders.Order{
		PatientId:   patientId,
		EncounterId: encounterId,
		OrderType:   orders.OrderTypeMedication,
		Payload:     map[string]interface{}{"name": name},
		OrderStatus: orders.OrderStatusDraft,
	}
}

func LabOrder(patientId, encounterId primitive.ObjectID, testName string) orders.Order {
	return orders.Order{
		PatientId:   patientId,
		EncounterId: encounterId,
		OrderType:   orders.OrderTypeLab,
		Payload:     map[string]interface{}{"testName": testName},
		OrderStatus: orders.OrderStatusDraft,
	}
}

// FakeRepository is an in-memory stand-in for the mongo repository.
type FakeRepository struct {
	mu     sync.Mutex
	orders []orders.Order

	CreateHook func(order *orders.Order) error
}

var _ orders.Repository = &FakeRepository{}

func NewFakeRepository() *FakeRepository {
	return &FakeRepository{}
}

func (f *FakeRepository) Seed(order orders.Order) *orders.Order {
	f.mu.Lock()
	defer f.mu.Unlock()

	if order.Id == nil {
		id := primitive.NewObjectID()
		order.Id = &id
	}
	f.orders = append(f.orders, order)
	return &order
}

func (f *FakeRepository) List(ctx context.Context, filter *orders.Filter) ([]*orders.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*orders.Order
	for i := range f.orders {
		order := f.orders[i]
		if filter != nil {
			if filter.EncounterId != nil && order.EncounterId.Hex() != *filter.EncounterId {
				continue
			}
			if filter.PatientId != nil && order.PatientId.Hex() != *filter.PatientId {
				continue
			}
			if filter.Status != nil && order.OrderStatus != *filter.Status {
				continue
			}
		}
		result = append(result, &order)
	}
	return result, nil
}

func (f *FakeRepository) CreateMany(ctx context.Context, toCreate []orders.Order) ([]*orders.Order, error) {
	created := make([]*orders.Order, 0, len(toCreate))
	for _, order := range toCreate {
		if f.CreateHook != nil {
			if err := f.CreateHook(&order); err != nil {
				return created, err
			}
		}

		f.mu.Lock()
		id := primitive.NewObjectID()
		order.Id = &id
		order.OrderStatus = orders.OrderStatusDraft
		order.CreatedAt = time.Now()
		order.UpdatedAt = time.Now()
		f.orders = append(f.orders, order)
		f.mu.Unlock()

		created = append(created, &order)
	}
	return created, nil
}

func (f *FakeRepository) CountDraftsForPatient(ctx context.Context, patientId string, excludeEncounterId string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for _, order := range f.orders {
		if order.PatientId.Hex() != patientId || order.OrderStatus != orders.OrderStatusDraft {
			continue
		}
		if excludeEncounterId != "" && order.EncounterId.Hex() == excludeEncounterId {
			continue
		}
		count++
	}
	return count, nil
}

func (f *FakeRepository) ActivateForEncounter(ctx context.Context, encounterId string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int64
	for i := range f.orders {
		if f.orders[i].EncounterId.Hex() == encounterId && f.orders[i].OrderStatus == orders.OrderStatusDraft {
			f.orders[i].OrderStatus = orders.OrderStatusActive
			f.orders[i].UpdatedAt = time.Now()
			count++
		}
	}
	return count, nil
}
