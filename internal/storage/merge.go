package storage

import (
	"sync"

	"github.com/johnayoung/go-price-sync/internal/models"
)

// MergeBars concatenates existing and incoming, keeps the later-arriving bar
// for every duplicated timestamp and sorts the result ascending.
// The second result is the growth in bar count relative to existing.
// Neither input is modified.
func MergeBars(existing, incoming []models.Bar) ([]models.Bar, int) {
	merged := make([]models.Bar, 0, len(existing)+len(incoming))
	index := make(map[int64]int, len(existing)+len(incoming))

	put := func(b models.Bar) {
		key := b.Timestamp.UnixNano()
		if i, ok := index[key]; ok {
			merged[i] = b
			return
		}
		index[key] = len(merged)
		merged = append(merged, b)
	}

	for _, b := range existing {
		put(b)
	}
	existingCount := len(merged)
	for _, b := range incoming {
		put(b)
	}

	models.SortBars(merged)
	return merged, len(merged) - existingCount
}

// keyLocks hands out one mutex per series key so at most one writer runs per
// (symbol, kind). Entries are never evicted; the key space is small.
type keyLocks struct {
	mu    sync.Mutex
	locks map[models.SeriesKey]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[models.SeriesKey]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release function.
func (k *keyLocks) lock(key models.SeriesKey) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// lockSymbol acquires the mutexes of every kind of symbol in a fixed order.
func (k *keyLocks) lockSymbol(symbol string, kinds []models.DataKind) func() {
	releases := make([]func(), 0, len(kinds))
	for _, kind := range kinds {
		releases = append(releases, k.lock(models.SeriesKey{Symbol: symbol, Kind: kind}))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
