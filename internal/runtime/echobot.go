package runtime

import (
	"context"
	"sync/atomic"

	"github.com/videobot/runtime/internal/bot"
	"github.com/videobot/runtime/internal/model"
)

// EchoBot is the CLI's reference bot.Descriptor: it queues one ANALYSIS
// message per frame carrying frame dimensions and a running count, and
// its control callback merges and echoes back whatever configure/control
// payload it receives. Real deployments construct their own bot.Builder
// programmatically against this package's Runtime; EchoBot exists so the
// CLI has something to drive end to end without one.
func EchoBot(pixelFormat model.PixelFormat) bot.Descriptor {
	var frameCount atomic.Uint64
	instanceData := map[string]any{}

	return bot.Descriptor{
		PixelFormat: pixelFormat,
		ImageCallback: func(ctx *bot.Context, frame *model.OwnedImageFrame) {
			n := frameCount.Add(1)
			ctx.Queue(model.MessageKindAnalysis, map[string]any{
				"frame":  n,
				"width":  frame.Width,
				"height": frame.Height,
			}, model.ZeroID)
		},
		ControlCallback: func(ctx context.Context, payload map[string]any) (any, error) {
			body, _ := payload["body"].(map[string]any)
			for k, v := range body {
				instanceData[k] = v
			}
			response := make(map[string]any, len(instanceData))
			for k, v := range instanceData {
				response[k] = v
			}
			return response, nil
		},
	}
}
