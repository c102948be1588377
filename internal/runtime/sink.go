package runtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/videobot/runtime/internal/broker"
	"github.com/videobot/runtime/internal/config"
	"github.com/videobot/runtime/internal/media"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/reporter"
	"github.com/videobot/runtime/internal/streams"
)

// outputSink is where a Runtime delivers the two halves of bot_output:
// the passed-through frame and the enriched message. One implementation
// per output kind the CLI supports.
type outputSink interface {
	OnFrame(*model.OwnedImageFrame)
	OnMessage(*model.BotMessage)
	Close()
}

// runSubscriber drives an outputSink from the bot stage's publisher,
// counting frames and messages for progress reporting.
type runSubscriber struct {
	rt   *Runtime
	sink outputSink
	done chan error
}

func (s *runSubscriber) OnSubscribe(sub streams.Subscription) { sub.Request(1 << 62) }

func (s *runSubscriber) OnNext(o model.BotOutput) {
	switch {
	case o.Frame != nil:
		s.rt.frames++
		s.sink.OnFrame(o.Frame)
		s.rt.rep.FramesProgress(reporter.FrameProgress{
			FramesProcessed: s.rt.frames,
			FPS:             s.rt.fps(),
			MessagesSent:    s.rt.messages,
		})
	case o.Message != nil:
		s.rt.messages++
		s.sink.OnMessage(o.Message)
	}
}

func (s *runSubscriber) OnComplete() {
	s.sink.Close()
	s.done <- nil
}

func (s *runSubscriber) OnError(err error) {
	s.sink.Close()
	s.done <- err
}

func (r *Runtime) fps() float64 {
	elapsed := time.Since(r.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(r.frames) / elapsed
}

// brokerOutputSink publishes messages to the broker and drops frames;
// the reverse (camera) direction re-publishes frames through the media
// encode path instead, not through the bot message channel.
type brokerOutputSink struct {
	bot *broker.BotSink
}

func (s brokerOutputSink) OnFrame(*model.OwnedImageFrame) {}
func (s brokerOutputSink) OnMessage(m *model.BotMessage)  { s.bot.OnNext(model.BotOutput{Message: m}) }
func (s brokerOutputSink) Close()                         {}

// stdoutOutputSink prints each message as a JSON line and drops frames;
// useful for manual testing without a broker.
type stdoutOutputSink struct{}

func (stdoutOutputSink) OnFrame(*model.OwnedImageFrame) {}
func (stdoutOutputSink) OnMessage(m *model.BotMessage)  { printMessage(m) }
func (stdoutOutputSink) Close()                         {}

// fileOutputSink re-encodes passed-through frames with a VPXEncoder and
// writes segments through a FileSink, the same stages EncodeVP9/FileSink
// drive when composed as a Publisher transform; here they're driven
// directly since the source is a Subscriber callback, not a stream.
type fileOutputSink struct {
	lagInFrames int
	encoder     media.Encoder
	sink        *media.FileSink
	inited      bool
}

func newFileOutputSink(cfg *config.Config, logger *slog.Logger) *fileOutputSink {
	return &fileOutputSink{
		lagInFrames: cfg.LagInFrames,
		encoder:     media.NewVPXEncoder(),
		sink: media.NewFileSink(media.FileSinkConfig{
			Dir:             cfg.OutputDir,
			Stem:            cfg.OutputStem,
			Ext:             cfg.OutputExt,
			SegmentDuration: cfg.SegmentDuration,
			NewMuxer:        func() media.Muxer { return media.NewFFmpegMuxer() },
			Logger:          logger,
		}),
	}
}

func (s *fileOutputSink) OnFrame(f *model.OwnedImageFrame) {
	if !s.inited {
		codecName, extradata, err := s.encoder.Init(f.Width, f.Height, s.lagInFrames)
		if err != nil {
			return
		}
		s.inited = true
		s.sink.OnNext(model.EncodedPacket{Metadata: &model.EncodedMetadata{
			CodecName:  codecName,
			CodecBytes: extradata,
			ImageSize:  &model.ImageSize{Width: f.Width, Height: f.Height},
		}})
	}
	packets, err := s.encoder.Push(*f)
	if err != nil {
		return
	}
	for _, p := range packets {
		s.sink.OnNext(model.EncodedPacket{Frame: &model.EncodedFrame{
			Bytes:    p.Bytes,
			PTS:      float64(p.PTSMs) / 1000,
			KeyFrame: p.KeyFrame,
		}})
	}
}

func (s *fileOutputSink) OnMessage(m *model.BotMessage) { printMessage(m) }

func (s *fileOutputSink) Close() {
	_ = s.encoder.Close()
	s.sink.OnComplete()
}

func printMessage(m *model.BotMessage) {
	fmt.Printf("%s from=%s i=%s %v\n", m.Kind, m.From, m.ID, m.Payload)
}

func loadConfigureBody(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return body, nil
}
