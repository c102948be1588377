package media

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/videobot/runtime/internal/errs"
)

// FFmpegMuxer remuxes packets into a container file by shelling out to
// ffmpeg in stream-copy mode, the same process-pipe idiom
// FFmpegDecoder/VPXEncoder use for decode and encode.
type FFmpegMuxer struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewFFmpegMuxer returns a Muxer constructor bound to no extra options;
// suitable as FileSinkConfig.NewMuxer.
func NewFFmpegMuxer() Muxer { return &FFmpegMuxer{} }

func (m *FFmpegMuxer) Open(path, codecName string, extradata []byte, width, height uint32) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", codecContainerFormat(codecName),
		"-i", "pipe:0",
		"-c", "copy",
		path,
	}
	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errs.NewStreamInit("media.file_sink", err)
	}
	if err := cmd.Start(); err != nil {
		return errs.NewStreamInit("media.file_sink", err)
	}
	m.cmd, m.stdin = cmd, stdin
	return nil
}

func (m *FFmpegMuxer) WritePacket(data []byte, ptsMs int64, keyFrame bool) error {
	if m.stdin == nil {
		return errs.NewNotInitialized("media.file_sink")
	}
	if _, err := m.stdin.Write(data); err != nil {
		return errs.NewFrameGeneration("media.file_sink", err)
	}
	return nil
}

func (m *FFmpegMuxer) Close() error {
	if m.stdin != nil {
		_ = m.stdin.Close()
	}
	if m.cmd == nil {
		return nil
	}
	if err := m.cmd.Wait(); err != nil {
		return errs.NewStreamInit("media.file_sink", fmt.Errorf("ffmpeg mux: %w", err))
	}
	return nil
}
