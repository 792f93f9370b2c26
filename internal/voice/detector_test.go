package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
)

// scriptedSource replays a fixed sequence of capture windows, then repeats
// the last one forever.
type scriptedSource struct {
	mu      sync.Mutex
	windows [][]byte
	pos     int
}

func (s *scriptedSource) Tracks() []core.AudioTrack { return nil }
func (s *scriptedSource) Close() error              { return nil }

func (s *scriptedSource) ReadLevels(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.windows) == 0 {
		return 0, nil
	}
	w := s.windows[s.pos]
	if s.pos < len(s.windows)-1 {
		s.pos++
	}
	return copy(buf, w), nil
}

func window(level byte) []byte {
	w := make([]byte, detectorBins)
	for i := range w {
		w[i] = level
	}
	return w
}

func collectTransitions(t *testing.T, src *scriptedSource, want int, timeout time.Duration) []bool {
	t.Helper()

	var mu sync.Mutex
	var got []bool
	d := NewSpeakingDetector(src, func(speaking bool) {
		mu.Lock()
		got = append(got, speaking)
		mu.Unlock()
	})
	d.interval = time.Millisecond
	go d.Run(context.Background())
	defer d.Stop()

	deadline := time.Now().Add(timeout)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= want {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d transitions, want %d", n, want)
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]bool(nil), got...)
}

func TestDetectorEdgeTriggered(t *testing.T) {
	src := &scriptedSource{windows: [][]byte{
		window(0),  // silent
		window(40), // speaking starts
		window(40), // still speaking, no callback
		window(0),  // speaking stops
	}}

	got := collectTransitions(t, src, 2, 2*time.Second)
	assert.Equal(t, []bool{true, false}, got[:2])
}

func TestDetectorThresholdBoundary(t *testing.T) {
	// Mean exactly at the threshold does not count as speaking.
	src := &scriptedSource{windows: [][]byte{
		window(speakingThreshold),
		window(speakingThreshold + 1),
	}}

	got := collectTransitions(t, src, 1, 2*time.Second)
	assert.True(t, got[0])
}

func TestDetectorIgnoresEmptyWindows(t *testing.T) {
	src := &scriptedSource{} // every read returns zero bins

	var fired bool
	d := NewSpeakingDetector(src, func(bool) { fired = true })
	d.interval = time.Millisecond
	go d.Run(context.Background())

	time.Sleep(20 * time.Millisecond)
	d.Stop()
	assert.False(t, fired)
}

func TestDetectorStopIsIdempotentAndWaits(t *testing.T) {
	src := &scriptedSource{windows: [][]byte{window(0)}}

	d := NewSpeakingDetector(src, func(bool) {})
	d.interval = time.Millisecond
	go d.Run(context.Background())

	d.Stop()
	d.Stop() // second call must not panic or block

	select {
	case <-d.done:
	default:
		t.Fatal("loop still running after Stop")
	}
}

func TestDetectorStopsOnContextCancel(t *testing.T) {
	src := &scriptedSource{windows: [][]byte{window(0)}}

	d := NewSpeakingDetector(src, func(bool) {})
	d.interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	cancel()
	select {
	case <-d.done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestDetectorDefaults(t *testing.T) {
	d := NewSpeakingDetector(&scriptedSource{}, func(bool) {})
	require.NotNil(t, d)
	assert.EqualValues(t, 10, d.threshold)
	assert.Equal(t, 50*time.Millisecond, d.interval)
}
