package processor

import (
	"context"
	"math"

	"comfybridge/internal/audio"
	"comfybridge/internal/pkg/logger"
)

type DurationProber struct {
	fn  audio.DurationFunc
	log *logger.Logger
}

func NewDurationProber(fn audio.DurationFunc, log *logger.Logger) *DurationProber {
	if fn == nil {
		fn = audio.Default
	}
	if log == nil {
		log = logger.Discard()
	}
	return &DurationProber{fn: fn, log: log}
}

// Probe returns the playback length of path in seconds. ok is false when
// the length cannot be determined; the cause is logged, not returned.
func (p *DurationProber) Probe(ctx context.Context, path string) (float64, bool) {
	secs, err := p.fn(ctx, path)
	if err != nil {
		p.log.FromContext(ctx).Warn("failed to calculate audio duration", "path", path, "error", err.Error())
		return 0, false
	}
	if secs <= 0 || math.IsNaN(secs) || math.IsInf(secs, 0) {
		p.log.FromContext(ctx).Warn("audio duration is not positive", "path", path, "seconds", secs)
		return 0, false
	}
	return secs, true
}
