// Package memory provides an in-memory cursor store for tests.
package memory

import (
	"context"
	"sync"

	"github.com/ukhsa-collaboration/covid19-app-system-public-sub006/state"
)

type Store struct {
	mu       sync.Mutex
	download *state.FederationBatch
	upload   *state.UploadState
}

func New() *Store { return &Store{} }

func (s *Store) LatestFederationBatch(ctx context.Context) (*state.FederationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.download == nil {
		return nil, nil
	}
	batch := *s.download
	return &batch, nil
}

func (s *Store) UpdateFederationBatch(ctx context.Context, batch state.FederationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.download = &batch
	return nil
}

func (s *Store) LastUploadState(ctx context.Context) (*state.UploadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upload == nil {
		return nil, nil
	}
	up := *s.upload
	return &up, nil
}

func (s *Store) UpdateUploadState(ctx context.Context, up state.UploadState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upload = &up
	return nil
}
