package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/moyoez/bill2sheet/types"
)

// ErrMalformed marks source errors caused by a broken multipart stream.
var ErrMalformed = errors.New("malformed multipart stream")

// Source yields the files of one upload in arrival order.
// Next returns io.EOF once every file has been yielded.
type Source interface {
	Len() int
	Next(ctx context.Context) (*types.FileUnit, error)
	// Close releases the bytes of files not yet yielded.
	Close() error
}

// SliceSource serves files that were already read from the request.
type SliceSource struct {
	mu    sync.Mutex
	units []*types.FileUnit
	pos   int
}

func NewSliceSource(units []*types.FileUnit) *SliceSource {
	return &SliceSource{units: units}
}

func (s *SliceSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.units)
}

func (s *SliceSource) Next(ctx context.Context) (*types.FileUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.units) {
		return nil, io.EOF
	}
	unit := s.units[s.pos]
	s.units[s.pos] = nil
	s.pos++
	return unit, nil
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := s.pos; i < len(s.units); i++ {
		if s.units[i] != nil {
			s.units[i].Release()
		}
		s.units[i] = nil
	}
	s.pos = len(s.units)
	return nil
}
