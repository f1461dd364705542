package encounters

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrEncounterBusy = errors.New("encounter is busy")

// EncounterLocker serializes mutating work per encounter. Delta processing
// uses TryAcquire and reports a conflict when the encounter is busy; signing
// uses Acquire and waits for in-flight work to drain.
type EncounterLocker interface {
	TryAcquire(encounterId string) (release func(), err error)
	Acquire(ctx context.Context, encounterId string) (release func(), err error)
}

func NewEncounterLocker() EncounterLocker {
	return &encounterLocker{
		locks: map[string]*semaphore.Weighted{},
	}
}

type encounterLocker struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func (l *encounterLocker) lockFor(encounterId string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.locks[encounterId]
	if !ok {
		sem = semaphore.NewWeighted(1)
		l.locks[encounterId] = sem
	}
	return sem
}

func (l *encounterLocker) TryAcquire(encounterId string) (func(), error) {
	sem := l.lockFor(encounterId)
	if !sem.TryAcquire(1) {
		return nil, ErrEncounterBusy
	}
	return func() { sem.Release(1) }, nil
}

func (l *encounterLocker) Acquire(ctx context.Context, encounterId string) (func(), error) {
	sem := l.lockFor(encounterId)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { sem.Release(1) }, nil
}
