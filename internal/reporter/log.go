package reporter

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// LogReporter writes pipeline events to a log file, one timestamped line
// per event.
type LogReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewLogReporter creates a reporter writing to w.
func NewLogReporter(w io.Writer) *LogReporter {
	return &LogReporter{w: w}
}

func (r *LogReporter) log(level, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(r.w, "%s [%s] %s\n", timestamp, level, msg)
}

func (r *LogReporter) Started(summary StartSummary) {
	r.log("INFO", "=== PIPELINE ===")
	r.log("INFO", "Bot: %s", summary.BotID)
	r.log("INFO", "Mode: %s", summary.Mode)
	r.log("INFO", "Input: %s", summary.Input)
	r.log("INFO", "Output: %s", summary.Output)
}

func (r *LogReporter) StageProgress(update StageProgress) {
	r.log("INFO", "[%s] %s", update.Stage, update.Message)
}

func (r *LogReporter) FramesProgress(snapshot FrameProgress) {
	r.log("INFO", "frames=%d fps=%.1f messages=%d",
		snapshot.FramesProcessed, snapshot.FPS, snapshot.MessagesSent)
}

func (r *LogReporter) SegmentClosed(info SegmentInfo) {
	r.log("INFO", "segment closed: %s (%s)", info.Path, info.Duration)
}

func (r *LogReporter) Warning(message string) {
	r.log("WARN", "%s", message)
}

func (r *LogReporter) Error(err ReporterError) {
	r.log("ERROR", "%s: %s", err.Title, err.Message)
	if err.Context != "" {
		r.log("ERROR", "  Context: %s", err.Context)
	}
	if err.Suggestion != "" {
		r.log("ERROR", "  Suggestion: %s", err.Suggestion)
	}
}

func (r *LogReporter) Complete(message string) {
	r.log("INFO", "=== COMPLETE === %s", message)
}
