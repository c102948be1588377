// Package runtime wires the pieces cmd/videobot assembles from flags —
// broker client, media stages, bot instance, pool controller, reporter —
// into one running pipeline. It is the Runtime the design notes call for:
// an explicit struct carrying process-wide handles, instead of package
// globals.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/videobot/runtime/internal/bot"
	"github.com/videobot/runtime/internal/broker"
	"github.com/videobot/runtime/internal/config"
	"github.com/videobot/runtime/internal/logging"
	"github.com/videobot/runtime/internal/media"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/pool"
	"github.com/videobot/runtime/internal/reporter"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/telemetry"
)

// Runtime owns every long-lived handle one pipeline run needs.
type Runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	rep      reporter.Reporter
	metrics  *telemetry.Registry
	bot      *bot.Instance
	client   broker.Client
	runner   *pool.Runner
	frames   uint64
	messages uint64
	started  time.Time
}

// New assembles a Runtime from cfg, ready for Run. desc supplies the
// image/control callbacks; the CLI's default is the echo bot in echobot.go.
func New(cfg *config.Config, logger *slog.Logger, rep reporter.Reporter, desc bot.Descriptor) *Runtime {
	metrics := telemetry.NewRegistry(prometheus.DefaultRegisterer)

	desc.Mode = bot.ModeLive
	if cfg.Mode == "batch" {
		desc.Mode = bot.ModeBatch
	}

	instance := bot.New(
		bot.WithPixelFormat(desc.PixelFormat),
		bot.WithImageCallback(desc.ImageCallback),
		bot.WithControlCallback(desc.ControlCallback),
		bot.WithMode(desc.Mode),
	).Build(cfg.BotID, metrics)

	return &Runtime{cfg: cfg, logger: logger, rep: rep, metrics: metrics, bot: instance}
}

// Run drives one pipeline end to end until the source completes, ctx is
// canceled, or a fatal error surfaces.
func (r *Runtime) Run(ctx context.Context) error {
	r.started = time.Now()
	r.rep.Started(reporter.StartSummary{
		BotID:  r.cfg.BotID,
		Mode:   r.cfg.Mode,
		Input:  inputLabel(r.cfg),
		Output: outputLabel(r.cfg),
	})

	if err := r.connectBroker(ctx); err != nil {
		return err
	}
	defer r.disconnectBroker()

	if err := r.runConfigure(ctx); err != nil {
		return err
	}

	if r.cfg.PoolChannel != "" {
		r.startPool(ctx)
	}

	packets, err := r.buildImageSource(ctx)
	if err != nil {
		return err
	}

	outputs := r.bot.Stage(packets)
	if r.client != nil {
		outputs = r.mergeControlResponses(ctx, outputs)
	}

	sink := r.buildOutputSink()
	done := make(chan error, 1)
	outputs.Subscribe(&runSubscriber{rt: r, sink: sink, done: done})

	select {
	case <-ctx.Done():
		r.rep.Warning("run canceled")
		return ctx.Err()
	case err := <-done:
		if err != nil {
			r.rep.Error(reporter.ReporterError{Title: "pipeline failed", Message: err.Error()})
			return err
		}
		r.rep.Complete(fmt.Sprintf("processed %d frames, sent %d messages", r.frames, r.messages))
		return nil
	}
}

func (r *Runtime) connectBroker(ctx context.Context) error {
	if r.cfg.InputKind != config.InputBroker && r.cfg.OutputKind != config.OutputBroker && r.cfg.PoolChannel == "" {
		return nil
	}
	brokerLogger := logging.WithConn(r.logger, r.cfg.BotID, r.cfg.BrokerURL)
	factory := func() broker.Client { return broker.NewWSClient(r.cfg.BrokerURL, brokerLogger) }
	client := broker.NewResilientClient(factory, brokerLogger)
	if _, err := await(client.Start(ctx)); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	r.client = client
	return nil
}

func (r *Runtime) disconnectBroker() {
	if r.client == nil {
		return
	}
	_, _ = await(r.client.Stop())
}

// await blocks until d settles, turning the callback-based Deferred into
// a synchronous call for the CLI's straight-line startup/shutdown code.
func await[T any](d *streams.Deferred[T]) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	d.On(func(v T, err error) { ch <- result{v, err} })
	res := <-ch
	return res.v, res.err
}

func (r *Runtime) runConfigure(ctx context.Context) error {
	var body map[string]any
	if r.cfg.ConfigPath != "" {
		loaded, err := loadConfigureBody(r.cfg.ConfigPath)
		if err != nil {
			return err
		}
		body = loaded
	}
	for _, msg := range r.bot.Configure(ctx, body) {
		r.publishMessage(&msg)
	}
	return nil
}

func (r *Runtime) startPool(ctx context.Context) {
	controller := pool.NewInMemoryController(r.cfg.JobCapacity)
	poolLogger := logging.WithStream(logging.WithStage(r.logger, "pool"), r.cfg.PoolChannel)
	r.runner = pool.NewRunner(r.client, controller, r.cfg.PoolChannel, pool.NodeID(), poolLogger)
	if err := r.runner.Start(ctx); err != nil {
		r.rep.Warning(fmt.Sprintf("pool controller did not start: %v", err))
	}
}

func (r *Runtime) buildImageSource(ctx context.Context) (streams.Publisher[model.OwnedImagePacket], error) {
	r.rep.StageProgress(reporter.StageProgress{Stage: "source", Message: inputLabel(r.cfg)})

	var encoded streams.Publisher[model.EncodedPacket]
	switch r.cfg.InputKind {
	case config.InputBroker:
		network := broker.RTMSource(r.client, r.cfg.InputChannel)
		decoded, _ := media.DecodeNetworkStream(network)
		encoded = decoded
	case config.InputFile:
		encoded = media.FileSource(media.NewFFmpegDemuxer(r.cfg.InputPath), r.cfg.Loop, r.cfg.Batch, 30)
	case config.InputURL:
		encoded = media.FileSource(media.NewFFmpegDemuxer(r.cfg.InputPath), r.cfg.Loop, r.cfg.Batch, 30)
	case config.InputCamera:
		encoded = media.FileSource(media.NewFFmpegCameraDemuxer(r.cfg.InputPath), false, r.cfg.Batch, 30)
	default:
		return nil, fmt.Errorf("unsupported input kind %d", r.cfg.InputKind)
	}

	if r.cfg.MaxFrames > 0 {
		encoded = streams.Take(encoded, int64(r.cfg.MaxFrames))
	}

	box := media.BoundingBox{Width: -1, Height: -1}
	stats := media.NewImageDecodeStats(r.metrics)
	return media.DecodeImageFrames(encoded, box, r.bot.Desc.PixelFormat, media.NewFFmpegDecoder(), stats), nil
}

// mergeControlResponses folds control-channel replies into the same
// bot_output stream as the image-path results, so one sink publishes both.
func (r *Runtime) mergeControlResponses(ctx context.Context, upstream streams.Publisher[model.BotOutput]) streams.Publisher[model.BotOutput] {
	if r.client == nil {
		return upstream
	}
	payloads := streams.Map(broker.ChannelStream(r.client, broker.ChannelControl, nil), channelDataToPayloads)
	flattened := streams.Flatten(payloads)
	control := r.bot.ControlStage(ctx, flattened)
	return streams.Merge(upstream, control)
}

func channelDataToPayloads(d broker.ChannelData) []any {
	out := make([]any, 0, len(d.Messages))
	for _, raw := range d.Messages {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

func (r *Runtime) buildOutputSink() outputSink {
	switch r.cfg.OutputKind {
	case config.OutputBroker:
		return brokerOutputSink{bot: broker.NewBotSink(r.client, r.cfg.OutputChannel)}
	case config.OutputFile:
		return newFileOutputSink(r.cfg, logging.WithStage(r.logger, "sink"))
	default:
		return stdoutOutputSink{}
	}
}

func (r *Runtime) publishMessage(m *model.BotMessage) {
	switch r.cfg.OutputKind {
	case config.OutputBroker:
		if r.client != nil {
			broker.NewBotSink(r.client, r.cfg.OutputChannel).OnNext(model.BotOutput{Message: m})
		}
	default:
		printMessage(m)
	}
}

func inputLabel(cfg *config.Config) string {
	switch cfg.InputKind {
	case config.InputBroker:
		return cfg.InputChannel
	default:
		return cfg.InputPath
	}
}

func outputLabel(cfg *config.Config) string {
	switch cfg.OutputKind {
	case config.OutputBroker:
		return cfg.OutputChannel
	case config.OutputFile:
		return cfg.OutputDir
	default:
		return "stdout"
	}
}
