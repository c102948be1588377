package model

import "time"

// NetworkMetadata carries codec parameters for a network-encoded stream.
// It is current until a subsequent NetworkMetadata arrives on the same
// stream.
type NetworkMetadata struct {
	CodecName      string
	Base64Codec    string
	Extra          map[string]any
}

// NetworkFrame is one chunk of a base64-encoded encoded frame, as it
// arrives over the broker frames channel. Chunks sharing ID are numbered
// 1..Chunks and must arrive in order.
type NetworkFrame struct {
	Base64Data  string
	ID          FrameID
	PTS         float64 // seconds
	DepartureTS float64 // seconds
	Chunk       int
	Chunks      int
	KeyFrame    bool
}

// NetworkPacket is the sum type flowing out of the broker source: either a
// metadata update or one frame chunk.
type NetworkPacket struct {
	Metadata *NetworkMetadata
	Frame    *NetworkFrame
}

// EncodedMetadata carries a codec name, raw codec extradata, and an
// optional image size for an encoded stream.
type EncodedMetadata struct {
	CodecName  string
	CodecBytes []byte
	ImageSize  *ImageSize
	Extra      map[string]any
}

// ImageSize is a width/height pair.
type ImageSize struct {
	Width  uint32
	Height uint32
}

// EncodedFrame is one complete reassembled, codec-encoded frame.
type EncodedFrame struct {
	Bytes    []byte
	ID       FrameID
	PTS      float64
	KeyFrame bool
	ArrivalTS time.Time
}

// EncodedPacket is the sum type flowing between the network-decode stage
// and the image-decode stage.
type EncodedPacket struct {
	Metadata *EncodedMetadata
	Frame    *EncodedFrame
}

// ImagePlane is one plane of a raw decoded image: row bytes plus a stride
// (possibly padded beyond Width*bytesPerPixel).
type ImagePlane struct {
	Bytes  []byte
	Stride int
}

// OwnedImageFrame is a fully decoded raw frame owned by the current stage;
// it is handed to the bot callback by reference and must not be retained
// past the callback's return.
type OwnedImageFrame struct {
	ID          FrameID
	PixelFormat PixelFormat
	Width       uint32
	Height      uint32
	PTS         float64
	Planes      [MaxImagePlanes]ImagePlane
}

// OwnedImageMetadata mirrors image-size/stride changes the bot context
// tracks between frames.
type OwnedImageMetadata struct {
	PixelFormat PixelFormat
	Width       uint32
	Height      uint32
	Strides     [MaxImagePlanes]int
}

// OwnedImagePacket is the sum type flowing into the bot stage.
type OwnedImagePacket struct {
	Metadata *OwnedImageMetadata
	Frame    *OwnedImageFrame
}

// MessageKind classifies a bot-produced message.
type MessageKind int

const (
	MessageKindAnalysis MessageKind = iota
	MessageKindDebug
	MessageKindControl
)

func (k MessageKind) String() string {
	switch k {
	case MessageKindAnalysis:
		return "ANALYSIS"
	case MessageKindDebug:
		return "DEBUG"
	case MessageKindControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// BotMessage is a structured result the user callback queues for
// publication; ID and From are filled in by the bot instance during
// enrichment (see internal/bot).
type BotMessage struct {
	Kind      MessageKind
	Payload   any
	ID        FrameID
	From      string
	RequestID string
}

// ControlMessage is an inbound control-channel payload addressed to a bot
// (or an array of such payloads).
type ControlMessage struct {
	Action    string
	Body      any
	To        string
	RequestID string
}

// BotOutput is the sum type emitted downstream by the bot stage: either the
// original image frame (passed through) or an enriched bot message.
type BotOutput struct {
	Frame   *OwnedImageFrame
	Message *BotMessage
}
