package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/andresmejia3/sentinel-home/internal/api"
	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/pipeline"
	"github.com/andresmejia3/sentinel-home/internal/sink"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/andresmejia3/sentinel-home/internal/worker"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
)

var watchOpts struct {
	Source   string
	NthFrame int
	NoVoice  bool
	Serve    bool
}

var watchCmd = &cobra.Command{
	Use:         "watch",
	Short:       "Watch the camera and greet, capture and alert in real time",
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runWatch(cmd.Context())
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchOpts.Source, "source", "s", "", "Camera device index, video file or stream URL (default: CAMERA_SOURCE)")
	watchCmd.Flags().IntVarP(&watchOpts.NthFrame, "nth-frame", "n", 0, "Recognize every n-th frame (default: NTH_FRAME)")
	watchCmd.Flags().BoolVar(&watchOpts.NoVoice, "no-voice", false, "Log announcements instead of speaking them")
	watchCmd.Flags().BoolVar(&watchOpts.Serve, "serve", false, "Also serve the HTTP API")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context) error {
	logger := slog.Default()
	source := cfg.Camera.Source
	if watchOpts.Source != "" {
		source = watchOpts.Source
	}
	nth := cfg.Camera.NthFrame
	if watchOpts.NthFrame > 0 {
		nth = watchOpts.NthFrame
	}

	galleries, watched, err := newGalleryStore(logger, true)
	if err != nil {
		utils.ShowError("Failed to set up galleries", err, nil)
		return err
	}
	eng := newEngine(galleries)

	evidence, err := newEvidence()
	if err != nil {
		utils.ShowError("Failed to set up evidence storage", err, nil)
		return err
	}
	if evidence == nil {
		fmt.Fprintln(os.Stderr, "⚠️  STORAGE_URL not set. Captures will be logged without images.")
	}

	var speaker sink.Speaker = sink.LogSpeaker{Logger: logger}
	var voice *sink.Voice
	if !watchOpts.NoVoice && cfg.Voice.Command != "" {
		voice, err = sink.NewVoice(cfg.Voice.Command, cfg.Voice.Queue, logger)
		if err != nil {
			utils.ShowError("Invalid voice command", err, nil)
			return err
		}
		speaker = voice
	}
	dispatcher := sink.NewDispatcher(evidence, DB, speaker, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Background tasks: gallery refresh, file watch, voice, API.
	var bg conc.WaitGroup
	bg.Go(func() { galleries.Run(runCtx) })
	if len(watched) > 0 {
		bg.Go(func() {
			if err := gallery.Watch(runCtx, galleries, watched, logger); err != nil {
				logger.Warn("gallery watcher stopped", "error", err)
			}
		})
	}
	if voice != nil {
		bg.Go(func() { voice.Run(runCtx) })
	}
	if watchOpts.Serve {
		srv := api.NewServer(cfg.Web.Addr(), DB, galleries, logger)
		bg.Go(func() {
			if err := srv.Run(runCtx); err != nil {
				logger.Error("api server failed", "error", err)
			}
		})
	}

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	det, err := worker.NewPythonWorker(runCtx, 0, cfg.Detector.Command, cfg.Detector.Timeout)
	if err != nil {
		cancel()
		bg.Wait()
		utils.ShowError("Failed to start detector", err, nil)
		return err
	}
	defer det.Close()

	ffmpeg := utils.NewFFmpegCmd(runCtx, source)
	frames, err := ffmpeg.StdoutPipe()
	if err != nil {
		cancel()
		bg.Wait()
		utils.ShowError("Failed to create FFmpeg stdout pipe", err, nil)
		return err
	}
	if err := ffmpeg.Start(); err != nil {
		cancel()
		bg.Wait()
		utils.ShowError("Failed to start FFmpeg", err, ffmpeg)
		return err
	}
	fmt.Fprintf(os.Stderr, "📹 Watching %s (every %d frame(s))...\n", source, nth)

	p := pipeline.New(det, eng, dispatcher, pipeline.WithNthFrame(nth), pipeline.WithLogger(logger))
	stats, runErr := p.Run(runCtx, frames)

	cancel()
	ffErr := ffmpeg.Wait()
	bg.Wait()

	fmt.Fprintf(os.Stderr, "\n🏁 Stopped. %d frames read, %d recognized, %d faces, %d actions, %d failures.\n",
		stats.Frames, stats.Processed, stats.Faces, stats.Actions, stats.Failures)

	if runErr != nil {
		utils.ShowError("Recognition loop failed", runErr, det.Cmd)
		return runErr
	}
	if ffErr != nil && ctx.Err() == nil {
		utils.ShowError("FFmpeg execution failed", ffErr, ffmpeg)
		return ffErr
	}
	return nil
}
