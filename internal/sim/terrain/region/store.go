package region

import (
	"context"
	"sync"
)

// Store is the persistent tier. GetRegion returns (nil, nil) when the region
// has never been stored. PutRegion overwrites; since generation is pure, any
// two writes for one key carry equal content.
type Store interface {
	GetRegion(ctx context.Context, dim string, c Coord) (*Region, error)
	PutRegion(ctx context.Context, dim string, r *Region) error
	GetOrCreateDimension(ctx context.Context, id string, seed int64, params Params) (Dimension, error)
}

type regionKey struct {
	dim string
	c   Coord
}

// MemStore keeps regions in process memory. Used when the database is
// disabled and in tests.
type MemStore struct {
	mu      sync.Mutex
	regions map[regionKey]*Region
	dims    map[string]Dimension

	puts int
}

func NewMemStore() *MemStore {
	return &MemStore{
		regions: map[regionKey]*Region{},
		dims:    map[string]Dimension{},
	}
}

func (s *MemStore) GetRegion(_ context.Context, dim string, c Coord) (*Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[regionKey{dim, c}]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (s *MemStore) PutRegion(_ context.Context, dim string, r *Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[regionKey{dim, r.Coord}] = r.Clone()
	s.puts++
	return nil
}

func (s *MemStore) GetOrCreateDimension(_ context.Context, id string, seed int64, params Params) (Dimension, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.dims[id]; ok {
		return d, nil
	}
	d := Dimension{ID: id, Seed: seed, Params: params}
	s.dims[id] = d
	return d, nil
}

func (s *MemStore) PutCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
