package media

import (
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/metrics"
)

// blackFramePayload is a pre-loaded I-frame/black-frame substitute for
// missing video packets.
var blackFramePayload = []byte{0x00, 0x00, 0x00, 0x01}

// NewVideoFiller paces video at 1000/fps ms per frame (default 25fps when
// fps is zero), as negotiated in the media handshake response.
func NewVideoFiller(fps int, output OutputFunc, logger zerolog.Logger, recorder *metrics.Recorder) *Filler {
	if fps <= 0 {
		fps = 25
	}
	frameDuration := time.Duration(1000/fps) * time.Millisecond
	return NewFiller(Config{
		MediaType:     "video",
		FrameDuration: frameDuration,
		FillerPayload: blackFramePayload,
		Output:        output,
		Logger:        logger,
		Metrics:       recorder,
	})
}
