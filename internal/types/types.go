package types

import (
	"fmt"
	"time"
)

// EmbeddingDim is the length of every face encoding produced by the detector.
const EmbeddingDim = 128

// Embedding is a single face encoding. Treat it as immutable once produced.
type Embedding []float64

// Validate reports whether the embedding has the expected dimension.
func (e Embedding) Validate() error {
	if len(e) != EmbeddingDim {
		return fmt.Errorf("embedding has %d dimensions, want %d", len(e), EmbeddingDim)
	}
	return nil
}

// Box is a face bounding box in frame pixels, ordered like the detector emits it.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// BoxFromLoc converts a [top, right, bottom, left] slice. Short slices yield a zero box.
func BoxFromLoc(loc []int) Box {
	if len(loc) < 4 {
		return Box{}
	}
	return Box{Top: loc[0], Right: loc[1], Bottom: loc[2], Left: loc[3]}
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Right <= b.Left || b.Bottom <= b.Top
}

// DetectedFace is one face found in one processed frame.
type DetectedFace struct {
	Embedding   Embedding
	Box         Box
	SourceFrame []byte // JPEG bytes of the full frame
	FrameIndex  int
	SeenAt      time.Time
}

// FaceResult is the JSON record used by recorded detection streams (replay input).
type FaceResult struct {
	Loc   []int     `json:"loc"` // [top, right, bottom, left]
	Vec   []float64 `json:"vec"` // 128-d face encoding
	TS    time.Time `json:"ts"`
	Frame string    `json:"frame,omitempty"` // optional path to the JPEG frame
}
