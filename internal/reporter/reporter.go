// Package reporter renders pipeline progress to a terminal or a log file.
// Both implementations share the Reporter interface so cmd/videobot can
// pick one based on whether stdout is a terminal.
package reporter

// Reporter receives progress notifications from a running pipeline: one
// call per source/decode/encode/bot/sink milestone, plus warnings and a
// final completion message.
type Reporter interface {
	Started(summary StartSummary)
	StageProgress(update StageProgress)
	FramesProgress(snapshot FrameProgress)
	SegmentClosed(info SegmentInfo)
	Warning(message string)
	Error(err ReporterError)
	Complete(message string)
}

// StartSummary describes the pipeline about to run.
type StartSummary struct {
	BotID  string
	Mode   string
	Input  string
	Output string
}

// StageProgress is a one-line status update from a named pipeline stage
// (source, decode, encode, bot, sink).
type StageProgress struct {
	Stage   string
	Message string
}

// FrameProgress is a periodic snapshot of throughput.
type FrameProgress struct {
	FramesProcessed uint64
	FPS             float64
	MessagesSent    uint64
}

// SegmentInfo reports a file-sink segment that just closed.
type SegmentInfo struct {
	Path     string
	Duration string
}

// ReporterError carries a user-facing error with optional context and a
// remediation suggestion.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}
