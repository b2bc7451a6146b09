package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/sentinel-home/internal/engine"
	"github.com/andresmejia3/sentinel-home/internal/sink"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var replayOpts struct {
	Input     string
	Galleries string
	Dispatch  bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed recorded detections through the decision engine",
	Long: `Reads a JSON Lines file of recorded detections ({"loc":[t,r,b,l],"vec":[...],"ts":"...","frame":"path.jpg"})
and runs each through the engine using the recorded timestamps. Actions are printed;
with --dispatch they are also executed (evidence upload, audit log, voice log).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runReplay(cmd.Context())
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOpts.Input, "input", "i", "", "Path to the detections .jsonl file")
	replayCmd.Flags().StringVarP(&replayOpts.Galleries, "galleries", "g", "", "Directory holding the gallery files (default: GALLERY_DIR or the bucket)")
	replayCmd.Flags().BoolVar(&replayOpts.Dispatch, "dispatch", false, "Execute the actions instead of only printing them")
	replayCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(replayCmd)
}

// readFaces parses one FaceResult per line. Blank lines are skipped.
func readFaces(r io.Reader) ([]types.FaceResult, error) {
	var faces []types.FaceResult
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var f types.FaceResult
		if err := json.Unmarshal([]byte(text), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := types.Embedding(f.Vec).Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		faces = append(faces, f)
	}
	return faces, scanner.Err()
}

// describe renders an action as one human-readable line.
func describe(a engine.Action) string {
	switch a := a.(type) {
	case engine.Capture:
		return fmt.Sprintf("📸 capture  %-14s %s (%s)", a.Key, a.FilenameHint, a.Visit.Classification)
	case engine.LogVisit:
		name := a.Name
		if name == "" {
			name = "-"
		}
		return fmt.Sprintf("📝 log      %-14s %s %s", name, a.Classification, a.Notes)
	case engine.Announce:
		return fmt.Sprintf("🔊 announce %q", a.Text)
	case engine.RaiseAlert:
		return fmt.Sprintf("🚨 alert    %s: %s", a.AlertType, a.Message)
	default:
		return a.Kind()
	}
}

func runReplay(ctx context.Context) error {
	logger := slog.Default()

	f, err := os.Open(replayOpts.Input)
	if err != nil {
		utils.ShowError("Input file does not exist", err, nil)
		return err
	}
	faces, err := readFaces(f)
	f.Close()
	if err != nil {
		utils.ShowError("Failed to parse detections", err, nil)
		return err
	}
	baseDir := filepath.Dir(replayOpts.Input)

	if replayOpts.Galleries != "" {
		cfg.Gallery.Dir = replayOpts.Galleries
	}
	galleries, _, err := newGalleryStore(logger, false)
	if err != nil {
		utils.ShowError("Failed to set up galleries", err, nil)
		return err
	}
	if err := galleries.RefreshAll(ctx); err != nil {
		// Mirror data loaded at startup is still usable.
		fmt.Fprintf(os.Stderr, "⚠️  Gallery refresh failed: %v\n", err)
	}
	eng := newEngine(galleries)

	var dispatcher *sink.Dispatcher
	if replayOpts.Dispatch {
		if err := openDB(ctx); err != nil {
			utils.ShowError("Failed to open audit log", err, nil)
			return err
		}
		evidence, err := newEvidence()
		if err != nil {
			utils.ShowError("Failed to set up evidence storage", err, nil)
			return err
		}
		dispatcher = sink.NewDispatcher(evidence, DB, sink.LogSpeaker{Logger: logger}, logger)
	}

	bar := progressbar.NewOptions(len(faces),
		progressbar.OptionSetDescription("🔁 Replaying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	counts := map[string]int{}
	var failures int
	var lines []string
	for i, fr := range faces {
		if ctx.Err() != nil {
			break
		}
		face := types.DetectedFace{
			Embedding:  types.Embedding(fr.Vec),
			Box:        types.BoxFromLoc(fr.Loc),
			FrameIndex: i,
			SeenAt:     fr.TS,
		}
		if fr.Frame != "" {
			path := fr.Frame
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			if data, err := os.ReadFile(path); err == nil {
				face.SourceFrame = data
			} else {
				logger.Warn("frame unreadable", "path", path, "error", err)
			}
		}

		actions := eng.Process(face)
		for _, a := range actions {
			counts[a.Kind()]++
			lines = append(lines, fmt.Sprintf("%s  %s", fr.TS.Format("15:04:05"), describe(a)))
		}
		if dispatcher != nil && len(actions) > 0 {
			if err := dispatcher.Dispatch(ctx, actions); err != nil {
				failures++
			}
		}
		bar.Add(1)
	}
	bar.Finish()
	fmt.Fprintln(os.Stderr)

	for _, l := range lines {
		fmt.Println(l)
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Replay Complete. %d detections: %d captures, %d visits, %d announcements, %d alerts",
		len(faces), counts["capture"], counts["log_visit"], counts["announce"], counts["raise_alert"])
	if dispatcher != nil {
		fmt.Fprintf(os.Stderr, ", %d dispatch failures", failures)
	}
	fmt.Fprintln(os.Stderr, ".")
	return nil
}
