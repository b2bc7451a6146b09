package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/andresmejia3/sentinel-home/internal/worker"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollOpts struct {
	FamilyDir   string
	CriminalDir string
	OutDir      string
	Upload      bool
}

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Build the family and criminal galleries from folders of photos",
	Long: `Encodes every image in the family and criminal folders (one person per file,
named after the file) and writes the gallery blobs. With --upload the blobs are
also published to the storage bucket, where running watchers pick them up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runEnroll(cmd.Context())
	},
}

func init() {
	enrollCmd.Flags().StringVar(&enrollOpts.FamilyDir, "family", "dataset/family", "Folder of family photos")
	enrollCmd.Flags().StringVar(&enrollOpts.CriminalDir, "criminals", "dataset/criminals", "Folder of criminal photos")
	enrollCmd.Flags().StringVarP(&enrollOpts.OutDir, "out", "o", "", "Directory to write the gallery files (default: GALLERY_DIR or current directory)")
	enrollCmd.Flags().BoolVar(&enrollOpts.Upload, "upload", false, "Upload the galleries to the storage bucket")
	rootCmd.AddCommand(enrollCmd)
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// listImages returns the image files directly inside dir, sorted by name.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func personName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// encodeFolder detects the largest face in every image of dir. Images without a face are skipped.
func encodeFolder(w *worker.PythonWorker, dir string) (*gallery.Snapshot, error) {
	files, err := listImages(dir)
	if err != nil {
		return nil, err
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription(fmt.Sprintf("🧬 Encoding %s", filepath.Base(dir))),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	var (
		embeddings [][]float64
		names      []string
		skipped    []string
	)
	for _, path := range files {
		bar.Add(1)
		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		faces, err := w.Detect(data)
		if err != nil {
			if !errors.Is(err, worker.ErrDetector) {
				return nil, err
			}
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			continue
		}
		if len(faces) == 0 {
			skipped = append(skipped, fmt.Sprintf("%s: no face found", filepath.Base(path)))
			continue
		}
		embeddings = append(embeddings, largestFace(faces).Embedding)
		names = append(names, personName(path))
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	for _, s := range skipped {
		fmt.Fprintf(os.Stderr, "❌ Skipped %s\n", s)
	}
	return gallery.NewSnapshot(embeddings, names, time.Now())
}

func runEnroll(ctx context.Context) error {
	outDir := enrollOpts.OutDir
	if outDir == "" {
		outDir = cfg.Gallery.Dir
	}
	if outDir == "" {
		outDir = "."
	}

	var uploader interface {
		Upload(ctx context.Context, path string, data []byte, contentType string) error
	}
	if enrollOpts.Upload {
		client, err := bucket()
		if err != nil {
			utils.ShowError("Invalid storage configuration", err, nil)
			return err
		}
		if client == nil {
			err := fmt.Errorf("STORAGE_URL is not set")
			utils.ShowError("Cannot upload galleries", err, nil)
			return err
		}
		uploader = client
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	w, err := worker.NewPythonWorker(ctx, 0, cfg.Detector.Command, cfg.Detector.Timeout)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	folders := map[gallery.ID]string{
		gallery.Family:   enrollOpts.FamilyDir,
		gallery.Criminal: enrollOpts.CriminalDir,
	}
	paths := galleryPaths()

	for _, id := range gallery.IDs {
		snap, err := encodeFolder(w, folders[id])
		if err != nil {
			utils.ShowError(fmt.Sprintf("Failed to encode %s gallery", id), err, w.Cmd)
			return err
		}
		data, err := gallery.Encode(snap)
		if err != nil {
			return err
		}

		// JSON is also valid YAML, so a .yaml gallery path still decodes.
		remote := paths[id]
		local := filepath.Join(outDir, filepath.Base(remote))
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			utils.ShowError("Failed to write gallery file", err, nil)
			return err
		}
		fmt.Fprintf(os.Stderr, "✔ %s gallery: %d people → %s\n", id, snap.Len(), local)

		if uploader != nil {
			if err := uploader.Upload(ctx, remote, data, "application/json"); err != nil {
				utils.ShowError("Failed to upload gallery", err, nil)
				return err
			}
			fmt.Fprintf(os.Stderr, "☁️  Uploaded %s\n", remote)
		}
	}
	return nil
}
