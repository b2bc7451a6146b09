package sink

import (
	"context"
	"log/slog"

	"github.com/andresmejia3/sentinel-home/internal/utils"
)

const DefaultVoiceQueue = 8

// Speaker accepts text to be spoken. Say never blocks and reports whether the text was queued.
type Speaker interface {
	Say(text string) bool
}

// Voice speaks queued announcements one at a time through an external TTS command
// (espeak by default). A full queue drops the announcement.
type Voice struct {
	name   string
	args   []string
	queue  chan string
	logger *slog.Logger
	run    func(ctx context.Context, name string, args ...string) error
}

// NewVoice builds a voice sink for a command line such as "espeak -s 150".
func NewVoice(command string, queue int, logger *slog.Logger) (*Voice, error) {
	name, args, err := utils.SplitCommand(command)
	if err != nil {
		return nil, err
	}
	if queue <= 0 {
		queue = DefaultVoiceQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Voice{
		name:   name,
		args:   args,
		queue:  make(chan string, queue),
		logger: logger,
		run:    runCommand,
	}, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := utils.NewSafeCommand(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		if cmd.Stderr.Len() > 0 {
			return &commandError{err: err, stderr: cmd.Stderr.String()}
		}
		return err
	}
	return nil
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string { return e.err.Error() + ": " + e.stderr }
func (e *commandError) Unwrap() error { return e.err }

// Say queues text for speaking.
func (v *Voice) Say(text string) bool {
	select {
	case v.queue <- text:
		return true
	default:
		v.logger.Warn("voice queue full, dropping announcement", "text", text)
		return false
	}
}

// Run speaks queued texts until ctx is cancelled.
func (v *Voice) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-v.queue:
			args := append(append([]string(nil), v.args...), text)
			if err := v.run(ctx, v.name, args...); err != nil && ctx.Err() == nil {
				v.logger.Warn("voice command failed", "command", v.name, "error", err)
			}
		}
	}
}

// LogSpeaker logs announcements instead of speaking them (replay, headless runs).
type LogSpeaker struct {
	Logger *slog.Logger
}

func (s LogSpeaker) Say(text string) bool {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("announce", "text", text)
	return true
}
