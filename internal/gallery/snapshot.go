// Package gallery keeps the reference galleries (family and criminal) in memory
// and swaps them atomically when a background refresh succeeds.
package gallery

import (
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/types"
)

// ID names one reference gallery.
type ID string

const (
	Family   ID = "family"
	Criminal ID = "criminal"
)

// IDs lists the galleries in the order they are refreshed and reported.
var IDs = []ID{Family, Criminal}

var (
	// ErrUnknownGallery is returned for a gallery ID the store was not built with.
	ErrUnknownGallery = errors.New("unknown gallery")
	// ErrMalformedBlob is returned when a fetched blob does not decode into a consistent gallery.
	ErrMalformedBlob = errors.New("malformed gallery blob")
)

// Snapshot is one immutable version of a gallery. embeddings[i] belongs to names[i].
type Snapshot struct {
	embeddings []types.Embedding
	names      []string
	fetchedAt  time.Time
}

var emptySnapshot = &Snapshot{}

// NewSnapshot validates and copies the given slices into a new snapshot.
func NewSnapshot(embeddings [][]float64, names []string, fetchedAt time.Time) (*Snapshot, error) {
	if len(embeddings) != len(names) {
		return nil, fmt.Errorf("%w: %d encodings but %d names", ErrMalformedBlob, len(embeddings), len(names))
	}

	s := &Snapshot{
		embeddings: make([]types.Embedding, len(embeddings)),
		names:      make([]string, len(names)),
		fetchedAt:  fetchedAt,
	}
	for i, vec := range embeddings {
		e := make(types.Embedding, len(vec))
		copy(e, vec)
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): %v", ErrMalformedBlob, i, names[i], err)
		}
		s.embeddings[i] = e
	}
	copy(s.names, names)
	return s, nil
}

// Len returns the number of reference identities.
func (s *Snapshot) Len() int {
	return len(s.names)
}

// At returns the reference embedding and name at index i.
// The returned embedding must not be modified.
func (s *Snapshot) At(i int) (types.Embedding, string) {
	return s.embeddings[i], s.names[i]
}

// FetchedAt is when the blob behind this snapshot was fetched. Zero for the initial empty snapshot.
func (s *Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}
