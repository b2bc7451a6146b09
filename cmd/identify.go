package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/andresmejia3/sentinel-home/internal/match"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/andresmejia3/sentinel-home/internal/worker"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Classify the face in a photo against the family and criminal galleries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runIdentify(cmd.Context(), args[0])
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&identifyThreshold, "threshold", "t", 0, "Match threshold (default: MATCH_THRESHOLD)")
	rootCmd.AddCommand(identifyCmd)
}

var identifyThreshold float64

// largestFace returns the face with the biggest box. faces must not be empty.
func largestFace(faces []types.DetectedFace) types.DetectedFace {
	best := faces[0]
	maxArea := area(best.Box)
	for _, f := range faces[1:] {
		if a := area(f.Box); a > maxArea {
			maxArea = a
			best = f
		}
	}
	return best
}

func area(b types.Box) int {
	if b.Empty() {
		return 0
	}
	return (b.Bottom - b.Top) * (b.Right - b.Left)
}

func runIdentify(ctx context.Context, imagePath string) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}
	if identifyThreshold > 0 {
		cfg.Policy.Threshold = identifyThreshold
	}

	galleries, _, err := newGalleryStore(slog.Default(), false)
	if err != nil {
		utils.ShowError("Failed to set up galleries", err, nil)
		return err
	}
	if err := galleries.RefreshAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Gallery refresh failed: %v\n", err)
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	w, err := worker.NewPythonWorker(ctx, 0, cfg.Detector.Command, cfg.Detector.Timeout)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer w.Close()

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	faces, err := w.Detect(imgData)
	if err != nil {
		utils.ShowError("AI processing failed", err, w.Cmd)
		return err
	}
	if len(faces) == 0 {
		fmt.Println("❌ No faces detected in the provided image.")
		return nil
	}
	if len(faces) > 1 {
		fmt.Printf("⚠️  Multiple faces detected (%d). Using the largest face.\n", len(faces))
	}

	v := newEngine(galleries).Classify(largestFace(faces).Embedding)
	switch v.Kind {
	case match.Family:
		fmt.Printf("🏠 Family: %s (distance %.4f)\n", v.Name, v.Distance)
	case match.Criminal:
		fmt.Printf("🚨 Criminal: %s (distance %.4f)\n", v.Name, v.Distance)
	default:
		fmt.Println("❓ Unknown visitor.")
	}
	return nil
}
