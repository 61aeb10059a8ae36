package builtin

import (
	"context"
	"log/slog"

	"github.com/tarsy-substrate/substrate/hook"
)

// LoggingHook emits a structured log line for every phase, at a
// configured level, matching the teacher's pervasive log/slog usage
// (e.g. pkg/queue/worker.go's slog.Info/slog.Warn call sites).
type LoggingHook struct {
	priority uint8
	level    slog.Level
	logger   *slog.Logger
}

// NewLoggingHook constructs a LoggingHook. logger defaults to slog.Default().
func NewLoggingHook(priority uint8, level slog.Level, logger *slog.Logger) *LoggingHook {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingHook{priority: priority, level: level, logger: logger}
}

func (h *LoggingHook) Name() string       { return "logging" }
func (h *LoggingHook) Priority() uint8    { return h.priority }
func (h *LoggingHook) Replayable() bool   { return false }
func (h *LoggingHook) AppliesTo(hook.Point) bool { return true }

func (h *LoggingHook) Execute(ctx context.Context, hctx hook.Context) hook.Result {
	h.logger.Log(ctx, h.level, "hook point reached",
		"point", hctx.Point,
		"component_id", hctx.ComponentID,
	)
	return hook.Result{Action: hook.ActionContinue}
}

var _ hook.Hook = (*LoggingHook)(nil)
