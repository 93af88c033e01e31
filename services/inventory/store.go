package main

import "sync"

// storeShards spreads products over independently locked shards so
// concurrent checkouts touching different products never contend.
const storeShards = 16

// Store is a concurrency-safe keyed inventory store. All mutation goes
// through Reserve/Release/Reset; reserve and release on the same product are
// linearizable, and a reserve that would drive quantity negative is rejected
// atomically with no partial effect.
//
// Products never seen before are treated as having defaultStock units so demo
// checkouts do not fail on unseeded catalog entries. A defaultStock of 0
// switches the store to strict mode where unknown products are out of stock.
type Store struct {
	shards       [storeShards]shard
	defaultStock int
}

type shard struct {
	mu    sync.Mutex
	items map[int64]int
}

// NewStore creates a new Store instance.
func NewStore(defaultStock int) *Store {
	s := &Store{defaultStock: defaultStock}
	for i := range s.shards {
		s.shards[i].items = make(map[int64]int)
	}
	return s
}

func (s *Store) shardFor(productID int64) *shard {
	return &s.shards[uint64(productID)%storeShards]
}

// Query returns the available quantity, 0 for unknown products. Query never
// applies the default-stock policy: only Reserve does.
func (s *Store) Query(productID int64) int {
	sh := s.shardFor(productID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.items[productID]
}

// Reserve atomically decrements quantity if and only if enough stock is
// available and the requested quantity is positive. It reports whether the
// hold was taken and the remaining quantity after it.
func (s *Store) Reserve(productID int64, quantity int) (bool, int) {
	sh := s.shardFor(productID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	available, known := sh.items[productID]
	if !known {
		available = s.defaultStock
	}
	if quantity <= 0 || quantity > available {
		return false, available
	}
	sh.items[productID] = available - quantity
	return true, available - quantity
}

// Release unconditionally returns quantity to the product. The caller is
// trusted to only release what it reserved; quantity must be positive.
func (s *Store) Release(productID int64, quantity int) int {
	sh := s.shardFor(productID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.items[productID] += quantity
	return sh.items[productID]
}

// Set pins a product to an absolute quantity.
func (s *Store) Set(productID int64, quantity int) {
	sh := s.shardFor(productID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.items[productID] = quantity
}

// Reset overwrites the quantities of the given products, leaving all others
// untouched. Test-only; exposed through a gated endpoint.
func (s *Store) Reset(items map[int64]int) {
	for productID, quantity := range items {
		s.Set(productID, quantity)
	}
}

// Snapshot copies the currently known quantities.
func (s *Store) Snapshot() map[int64]int {
	out := make(map[int64]int)
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for productID, quantity := range sh.items {
			out[productID] = quantity
		}
		sh.mu.Unlock()
	}
	return out
}
