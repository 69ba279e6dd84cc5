package signature

import "encoding/json"

// MsgType tags every signaling/media frame exchanged with the vendor's
// WebSocket transport.
type MsgType int

const (
	MsgSignalingHandshakeRequest  MsgType = 1
	MsgSignalingHandshakeResponse MsgType = 2
	MsgMediaHandshakeRequest      MsgType = 3
	MsgMediaHandshakeResponse     MsgType = 4
	MsgEventSubscription         MsgType = 5
	MsgSignalingEvent            MsgType = 6
	MsgMediaReady                MsgType = 7
	MsgStreamStateChanged        MsgType = 8
	MsgSessionStateChanged       MsgType = 9
	MsgKeepAliveRequest          MsgType = 12
	MsgKeepAliveResponse         MsgType = 13
	MsgAudio                     MsgType = 14
	MsgVideo                     MsgType = 15
	MsgShare                     MsgType = 16
	MsgTranscript                MsgType = 17
	MsgChat                      MsgType = 18
)

// Envelope is the common shape of every frame: a msg_type tag plus an
// opaque content object decoded by the caller once the tag is known.
type Envelope struct {
	MsgType MsgType         `json:"msg_type"`
	Content json.RawMessage `json:"content,omitempty"`

	// Top-level fields used by handshake/state frames that don't nest
	// under content.
	StatusCode  *int         `json:"status_code,omitempty"`
	Timestamp   int64        `json:"timestamp,omitempty"`
	MediaServer *MediaServer `json:"media_server,omitempty"`
	MediaType   int          `json:"media_type,omitempty"`
	MediaParams *MediaParams `json:"media_params,omitempty"`
	State       int          `json:"state,omitempty"`
	Reason      int          `json:"reason,omitempty"`
	Events      []string     `json:"events,omitempty"`
}

// MediaServer lists the per-media-type URLs the signaling handshake
// response advertises as available.
type MediaServer struct {
	ServerURLs map[string]string `json:"server_urls"`
}

// MediaParams carries the negotiated pacing parameters that gate filler
// behaviour: audio sample rate/send rate, video fps.
type MediaParams struct {
	AudioSampleRate int `json:"audio_sample_rate,omitempty"`
	AudioSendRateMs int `json:"audio_send_rate_ms,omitempty"`
	VideoFPS        int `json:"video_fps,omitempty"`
}

// MediaPayload is the decoded content of msg_type 14-18 frames: audio,
// video, share, transcript, and chat.
type MediaPayload struct {
	Data      string `json:"data"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Timestamp int64  `json:"timestamp"`

	// Transcript-only fields.
	StartTime int64  `json:"start_time,omitempty"`
	EndTime   int64  `json:"end_time,omitempty"`
	Language  string `json:"language,omitempty"`
	Attribute string `json:"attribute,omitempty"`

	// Message text, carried by chat and transcript frames.
	Text string `json:"text,omitempty"`
}

// HandshakeRequest is the msg_type=1/3 outbound payload.
type HandshakeRequest struct {
	MsgType     MsgType `json:"msg_type"`
	MeetingUUID string  `json:"meeting_uuid"`
	StreamID    string  `json:"rtms_stream_id"`
	Signature   string  `json:"signature"`
	MediaType   int     `json:"media_type,omitempty"`
}

// Encode marshals v as a wire frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode unmarshals a wire frame into an Envelope, leaving Content raw for
// the caller to interpret based on MsgType.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodeContent re-unmarshals env.Content into dst.
func DecodeContent(env Envelope, dst any) error {
	if len(env.Content) == 0 {
		return nil
	}
	return json.Unmarshal(env.Content, dst)
}
