package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/andresmejia3/sentinel-home/internal/engine"
	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/sink"
	"github.com/andresmejia3/sentinel-home/internal/storage"
	"github.com/andresmejia3/sentinel-home/internal/throttle"
)

func galleryPaths() map[gallery.ID]string {
	return map[gallery.ID]string{
		gallery.Family:   cfg.Gallery.FamilyPath,
		gallery.Criminal: cfg.Gallery.CriminalPath,
	}
}

// bucket returns the storage client, or nil when no STORAGE_URL is configured.
func bucket() (*storage.Client, error) {
	if cfg.Storage.URL == "" {
		return nil, nil
	}
	return storage.NewClient(cfg.Storage.URL, cfg.Storage.Key, cfg.Storage.Bucket)
}

// newGalleryStore picks the gallery source: GALLERY_DIR files when set, the bucket otherwise.
// watched lists the local files to watch for changes (empty for the bucket source).
// Only long-running recognition passes mirror=true; one-shot commands leave no files behind.
func newGalleryStore(logger *slog.Logger, mirror bool) (store *gallery.Store, watched []string, err error) {
	paths := galleryPaths()

	var source gallery.Source
	if cfg.Gallery.Dir != "" {
		fs := gallery.NewFileSource(cfg.Gallery.Dir, paths)
		for _, id := range gallery.IDs {
			if p, ok := fs.Path(id); ok {
				watched = append(watched, p)
			}
		}
		source = fs
	} else {
		client, err := bucket()
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("no gallery source: set STORAGE_URL or GALLERY_DIR")
		}
		source = gallery.NewBlobSource(client, paths)
	}

	mirrorDir := ""
	if mirror {
		mirrorDir = cfg.Gallery.MirrorDir
	}
	store = gallery.NewStore(source,
		gallery.WithInterval(cfg.Gallery.PollInterval),
		gallery.WithMirrorDir(mirrorDir),
		gallery.WithLogger(logger),
	)
	if err := store.LoadMirror(paths); err != nil {
		logger.Warn("gallery mirror unreadable", "dir", filepath.Clean(cfg.Gallery.MirrorDir), "error", err)
	}
	return store, watched, nil
}

func newEngine(galleries engine.Galleries) *engine.Engine {
	policy := cfg.Policy
	return engine.New(galleries,
		throttle.NewRegistry(policy.ThrottleMaxEntries),
		engine.Config{
			Threshold:        policy.Threshold,
			AnnounceCooldown: policy.AnnounceCooldown,
			CaptureCooldown:  policy.CaptureCooldown,
		},
		engine.WithKeyer(engine.NewClusterKeyer(policy.UnknownClusterThreshold, policy.UnknownMaxClusters)),
	)
}

// newEvidence returns the evidence uploader, or nil when the bucket is not configured.
func newEvidence() (sink.EvidenceStore, error) {
	client, err := bucket()
	if err != nil || client == nil {
		return nil, err
	}
	return sink.NewEvidence(client, cfg.Evidence.Prefix, cfg.Evidence.MaxSize), nil
}
