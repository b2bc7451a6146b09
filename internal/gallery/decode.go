package gallery

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// blob is the serialized gallery layout shared by the builder and the recognizer.
type blob struct {
	Encodings [][]float64 `json:"encodings" yaml:"encodings"`
	Names     []string    `json:"names" yaml:"names"`
}

// Decode parses a gallery blob. The format is picked from the path suffix:
// .yaml/.yml is YAML, everything else is JSON.
func Decode(path string, data []byte, fetchedAt time.Time) (*Snapshot, error) {
	var b blob
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
		}
	default:
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
		}
	}
	return NewSnapshot(b.Encodings, b.Names, fetchedAt)
}

// Encode serializes a snapshot back into the JSON blob layout.
func Encode(s *Snapshot) ([]byte, error) {
	b := blob{
		Encodings: make([][]float64, s.Len()),
		Names:     make([]string, s.Len()),
	}
	for i := 0; i < s.Len(); i++ {
		e, name := s.At(i)
		b.Encodings[i] = e
		b.Names[i] = name
	}
	return json.Marshal(b)
}
