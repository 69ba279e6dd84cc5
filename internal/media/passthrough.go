package media

// Passthrough emits frames in arrival order without pacing, for
// deployments that only need transcription and don't care about constant
// output rate. It satisfies the same Emitter interface as Filler so
// callers don't branch on which mode is active.
type Passthrough struct {
	output OutputFunc
}

// NewPassthrough builds an Emitter that forwards every pushed packet
// immediately.
func NewPassthrough(output OutputFunc) *Passthrough {
	return &Passthrough{output: output}
}

func (p *Passthrough) Push(timestamp int64, data []byte, meta any) {
	if p.output != nil {
		p.output(Frame{Timestamp: timestamp, Data: data, Real: true, Meta: meta})
	}
}

func (p *Passthrough) Stop(int64) {}
