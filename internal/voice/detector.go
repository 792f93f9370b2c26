package voice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
)

const (
	// detectorBins is the frequency-domain resolution of one sample.
	detectorBins = 256
	// speakingThreshold is the mean bin magnitude above which the local
	// user counts as speaking.
	speakingThreshold = 10
	// detectorInterval paces the sampling loop.
	detectorInterval = 50 * time.Millisecond
)

// SpeakingDetector continuously samples local audio levels and reports
// speaking-state transitions. Edge-triggered: the callback fires only when
// the state flips, never per sample.
type SpeakingDetector struct {
	source    core.LocalMediaSource
	onChange  func(speaking bool)
	threshold float64
	interval  time.Duration
	quit      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewSpeakingDetector(source core.LocalMediaSource, onChange func(bool)) *SpeakingDetector {
	return &SpeakingDetector{
		source:    source,
		onChange:  onChange,
		threshold: speakingThreshold,
		interval:  detectorInterval,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run samples until ctx is cancelled or Stop is called. It must be stopped
// when the local media session is released.
func (d *SpeakingDetector) Run(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	buf := make([]byte, detectorBins)
	speaking := false

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "voice.detector").Msg("sampling loop stopped")
			return
		case <-d.quit:
			log.Debug().Str("module", "voice.detector").Msg("sampling loop stopped")
			return
		case <-ticker.C:
			n, err := d.source.ReadLevels(buf)
			if err != nil {
				log.Error().Err(err).Str("module", "voice.detector").Msg("level read failed, stopping")
				return
			}
			if n == 0 {
				continue
			}
			var sum int
			for _, v := range buf[:n] {
				sum += int(v)
			}
			now := float64(sum)/float64(n) > d.threshold
			if now != speaking {
				speaking = now
				d.onChange(speaking)
			}
		}
	}
}

// Stop cancels the loop and waits for it to exit.
func (d *SpeakingDetector) Stop() {
	d.stopOnce.Do(func() { close(d.quit) })
	<-d.done
}
