package engine

import (
	"fmt"
	"sync"

	"github.com/andresmejia3/sentinel-home/internal/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"gonum.org/v1/gonum/floats"
)

// Keyer derives the throttle key for a face that matched no gallery.
type Keyer interface {
	Key(face types.DetectedFace) string
}

const (
	DefaultClusterThreshold = 0.50
	DefaultMaxClusters      = 256
	// centroids stop averaging after this many members so they can follow slow drift.
	maxClusterWeight = 20
)

type cluster struct {
	centroid types.Embedding
	weight   int
}

// ClusterKeyer gives the same key to unknown faces whose embeddings stay close,
// so one stranger walking across the frame is throttled as one identity.
type ClusterKeyer struct {
	mu        sync.Mutex
	threshold float64
	clusters  *lru.Cache[string, *cluster]
	next      int
}

// NewClusterKeyer keeps at most maxClusters recent unknown identities.
func NewClusterKeyer(threshold float64, maxClusters int) *ClusterKeyer {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}
	if maxClusters <= 0 {
		maxClusters = DefaultMaxClusters
	}
	clusters, _ := lru.New[string, *cluster](maxClusters)
	return &ClusterKeyer{threshold: threshold, clusters: clusters}
}

func (k *ClusterKeyer) Key(face types.DetectedFace) string {
	k.mu.Lock()
	defer k.mu.Unlock()

	best := ""
	bestDist := k.threshold
	for _, key := range k.clusters.Keys() {
		c, ok := k.clusters.Peek(key)
		if !ok || len(c.centroid) != len(face.Embedding) {
			continue
		}
		if d := floats.Distance(face.Embedding, c.centroid, 2); d < bestDist {
			best, bestDist = key, d
		}
	}

	if best != "" {
		c, _ := k.clusters.Get(best)
		if c.weight < maxClusterWeight {
			c.weight++
		}
		// Running mean toward the newest sighting.
		w := float64(c.weight)
		for i := range c.centroid {
			c.centroid[i] += (face.Embedding[i] - c.centroid[i]) / w
		}
		return best
	}

	k.next++
	key := fmt.Sprintf("unknown_%d", k.next)
	centroid := make(types.Embedding, len(face.Embedding))
	copy(centroid, face.Embedding)
	k.clusters.Add(key, &cluster{centroid: centroid, weight: 1})
	return key
}

// Len returns the number of tracked unknown identities.
func (k *ClusterKeyer) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.clusters.Len()
}

// SpatialKeyer keys unknown faces by the vertical position of their box, bucketed
// to absorb small jitter. It is only stable for faces that stay put.
type SpatialKeyer struct {
	Bucket int
}

func (k SpatialKeyer) Key(face types.DetectedFace) string {
	bucket := k.Bucket
	if bucket <= 0 {
		bucket = 1
	}
	return fmt.Sprintf("unknown_%d", face.Box.Top/bucket*bucket)
}
