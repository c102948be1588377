package media

import (
	"io"
	"time"

	"github.com/videobot/runtime/internal/errs"
	"github.com/videobot/runtime/internal/model"
	"github.com/videobot/runtime/internal/streams"
	"github.com/videobot/runtime/internal/streams/concurrency"
)

// Demuxer abstracts the container-level read side a file/url/camera
// source pulls from; the stage itself owns id assignment, pts-to-wall-time
// conversion, loop handling, and pacing (spec section 4.4.4).
type Demuxer interface {
	// Open locates the best video stream and returns its codec parameters.
	Open() (codecName string, extradata []byte, err error)
	// ReadPacket returns the next packet's bytes, byte position, and pts
	// (stream time base already applied, in seconds); io.EOF at end.
	ReadPacket() (data []byte, pos int64, pts float64, keyFrame bool, err error)
	SeekStart() error
	Close() error
}

type sourceState struct {
	demuxer Demuxer
	loop    bool
	opened  bool
	lastPos int64
	start   time.Time
}

// FileSource (and, identically, URLSource/CameraSource for a demuxer
// bound to a URL or capture device) is a stateful generator yielding
// encoded_packets: one encoded_metadata before any frame, then one
// encoded_frame per packet. Unless batch is set, the result is paced by
// interval(1/fps).
func FileSource(demuxer Demuxer, loop, batch bool, fps float64) streams.Publisher[model.EncodedPacket] {
	initial := sourceState{demuxer: demuxer, loop: loop, start: time.Now()}

	gen := streams.NewStatefulGenerator(initial, func(st *sourceState) (model.EncodedPacket, bool, error) {
		if !st.opened {
			codecName, extradata, err := st.demuxer.Open()
			if err != nil {
				return model.EncodedPacket{}, false, errs.NewStreamInit("media.file_source", err)
			}
			st.opened = true
			return model.EncodedPacket{Metadata: &model.EncodedMetadata{CodecName: codecName, CodecBytes: extradata}}, true, nil
		}

		data, pos, pts, keyFrame, err := st.demuxer.ReadPacket()
		if err == io.EOF {
			if st.loop {
				if seekErr := st.demuxer.SeekStart(); seekErr != nil {
					return model.EncodedPacket{}, false, errs.NewStreamInit("media.file_source", seekErr)
				}
				st.lastPos = 0
				data, pos, pts, keyFrame, err = st.demuxer.ReadPacket()
				if err != nil {
					return model.EncodedPacket{}, false, nil
				}
			} else {
				return model.EncodedPacket{}, false, nil
			}
		} else if err != nil {
			return model.EncodedPacket{}, false, errs.NewFrameGeneration("media.file_source", err)
		}

		id := model.FrameID{I1: st.lastPos, I2: pos}
		st.lastPos = pos + 1
		wallPTS := st.start.Add(time.Duration(pts * float64(time.Second)))

		return model.EncodedPacket{Frame: &model.EncodedFrame{
			Bytes:     data,
			ID:        id,
			PTS:       pts,
			KeyFrame:  keyFrame,
			ArrivalTS: wallPTS,
		}}, true, nil
	})

	if batch {
		return gen
	}
	if fps <= 0 {
		fps = 30
	}
	period := time.Duration(float64(time.Second) / fps)
	return concurrency.Interval(gen, period, nil)
}
