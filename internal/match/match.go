// Package match classifies a face embedding against the reference galleries.
package match

import (
	"fmt"

	"github.com/andresmejia3/sentinel-home/internal/types"
	"gonum.org/v1/gonum/floats"
)

// DefaultThreshold is the Euclidean distance below which a face counts as a match.
const DefaultThreshold = 0.50

// Gallery is the read side of a gallery snapshot.
type Gallery interface {
	Len() int
	At(i int) (types.Embedding, string)
}

// Result is the nearest reference found in a gallery.
type Result struct {
	Name     string
	Distance float64
	Index    int
}

// Nearest returns the reference closest to e by Euclidean distance. Ties go to
// the lowest index. ok is false for an empty gallery.
func Nearest(e types.Embedding, g Gallery) (res Result, ok bool) {
	n := g.Len()
	if n == 0 {
		return Result{}, false
	}
	for i := 0; i < n; i++ {
		ref, name := g.At(i)
		if len(ref) != len(e) {
			continue
		}
		d := floats.Distance(e, ref, 2)
		if !ok || d < res.Distance {
			res = Result{Name: name, Distance: d, Index: i}
			ok = true
		}
	}
	return res, ok
}

// Kind is the outcome of a classification.
type Kind int

const (
	Unknown Kind = iota
	Family
	Criminal
)

func (k Kind) String() string {
	switch k {
	case Family:
		return "family"
	case Criminal:
		return "criminal"
	default:
		return "unknown"
	}
}

// Verdict is the classification of one face. Name and Distance are empty for Unknown.
type Verdict struct {
	Kind     Kind
	Name     string
	Distance float64
}

func (v Verdict) String() string {
	if v.Kind == Unknown {
		return "Unknown"
	}
	return fmt.Sprintf("%s(%s, %.4f)", v.Kind, v.Name, v.Distance)
}

// Classify checks the family gallery first and returns on the first match strictly
// below threshold; only then the criminal gallery. Anything else is Unknown.
func Classify(e types.Embedding, family, criminal Gallery, threshold float64) Verdict {
	if r, ok := Nearest(e, family); ok && r.Distance < threshold {
		return Verdict{Kind: Family, Name: r.Name, Distance: r.Distance}
	}
	if r, ok := Nearest(e, criminal); ok && r.Distance < threshold {
		return Verdict{Kind: Criminal, Name: r.Name, Distance: r.Distance}
	}
	return Verdict{Kind: Unknown}
}
