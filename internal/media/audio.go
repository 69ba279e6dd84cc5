package media

import (
	"time"

	"github.com/rs/zerolog"

	"rtms-ingest/internal/metrics"
)

// silencePayload is a minimal pre-rolled silence frame substituted for
// missing audio packets. Real deployments would size this to the
// negotiated sample rate; the filler treats it as an opaque payload.
var silencePayload = []byte{0x00}

// NewAudioFiller paces audio at sendRate ms per frame (default 20ms when
// sendRate is zero), as negotiated in the media handshake response.
func NewAudioFiller(sendRate time.Duration, output OutputFunc, logger zerolog.Logger, recorder *metrics.Recorder) *Filler {
	if sendRate <= 0 {
		sendRate = 20 * time.Millisecond
	}
	return NewFiller(Config{
		MediaType:     "audio",
		FrameDuration: sendRate,
		FillerPayload: silencePayload,
		Output:        output,
		Logger:        logger,
		Metrics:       recorder,
	})
}
