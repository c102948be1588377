package config

import "testing"

func TestValidateRequiresBotID(t *testing.T) {
	cfg := New(WithBrokerInput("ws://x", "in"), WithBrokerOutput("ws://x", "out"))
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing bot id")
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := New(
		WithBotID("bot-1"),
		WithMode("turbo"),
		WithBrokerInput("ws://x", "in"),
		WithBrokerOutput("ws://x", "out"),
	)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestValidateBrokerInputRequiresURLAndChannel(t *testing.T) {
	cfg := New(WithBotID("bot-1"), WithBrokerOutput("ws://x", "out"))
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing broker url/channel on input")
	}
}

func TestValidateFileInputRequiresPath(t *testing.T) {
	cfg := New(WithBotID("bot-1"), WithFileInput("", false), WithStdoutOutput())
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing file input path")
	}
}

func TestValidateFileOutputRequiresDir(t *testing.T) {
	cfg := New(WithBotID("bot-1"), WithFileInput("in.ivf", false), WithFileOutput("", "", ""))
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing output dir")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := New(
		WithBotID("bot-1"),
		WithMode("batch"),
		WithFileInput("in.ivf", true),
		WithStdoutOutput(),
	)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsNonPositiveLimits(t *testing.T) {
	cfg := New(WithBotID("bot-1"), WithFileInput("in.ivf", false), WithStdoutOutput())
	cfg.SegmentDuration = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive segment duration")
	}
}
