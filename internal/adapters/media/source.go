// Package media implements core.MediaDevices over an RTP capture pipeline.
// The platform-specific capture (microphone, pipe, test feed) only needs to
// produce RTP packets; everything else lives here.
package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/pr-poehali-dev/video-viewing-app/internal/core"
)

// PacketReader produces captured audio as RTP packets.
type PacketReader interface {
	ReadRTP() (*rtp.Packet, error)
	Close() error
}

// OpenFunc opens the platform capture device with the requested processing
// options applied.
type OpenFunc func(ctx context.Context, opts core.CaptureOptions) (PacketReader, error)

// Devices adapts an OpenFunc to core.MediaDevices.
type Devices struct {
	Open OpenFunc
}

func NewDevices(open OpenFunc) *Devices { return &Devices{Open: open} }

func (d *Devices) Acquire(ctx context.Context, opts core.CaptureOptions) (core.LocalMediaSource, error) {
	reader, err := d.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	local, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "local",
	)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	src := &Source{
		reader: reader,
		track:  &Track{local: local},
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	src.track.enabled.Store(true)
	go src.pump(ctx)
	return src, nil
}

// Track is one local audio track riding a pion static RTP track.
type Track struct {
	local   *webrtc.TrackLocalStaticRTP
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *Track) ID() string                  { return t.local.ID() }
func (t *Track) Enabled() bool               { return t.enabled.Load() }
func (t *Track) SetEnabled(on bool)          { t.enabled.Store(on) }
func (t *Track) Stop()                       { t.stopped.Store(true) }
func (t *Track) RTPTrack() webrtc.TrackLocal { return t.local }

// Source pumps packets from the capture reader into the local track and
// keeps the latest payload window for level sampling.
type Source struct {
	reader PacketReader
	track  *Track

	mu     sync.Mutex
	window []byte

	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	closed   atomic.Bool
}

func (s *Source) pump(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		default:
		}
		pkt, err := s.reader.ReadRTP()
		if err != nil {
			log.Error().Err(err).Str("module", "media").Msg("capture read error, stopping pump")
			return
		}

		s.mu.Lock()
		s.window = append(s.window[:0], pkt.Payload...)
		s.mu.Unlock()

		if s.track.stopped.Load() || !s.track.enabled.Load() {
			continue
		}
		if err := s.track.local.WriteRTP(pkt); err != nil {
			log.Error().Err(err).Str("module", "media").Msg("track write error")
		}
	}
}

func (s *Source) Tracks() []core.AudioTrack {
	return []core.AudioTrack{s.track}
}

// ReadLevels exposes the most recent capture window as magnitude bins.
func (s *Source) ReadLevels(buf []byte) (int, error) {
	if s.closed.Load() {
		return 0, errors.New("media source closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(buf, s.window)
	return n, nil
}

// Close stops the pump and releases the capture device. It returns after
// the pump goroutine has exited.
func (s *Source) Close() error {
	s.closed.Store(true)
	s.stopOnce.Do(func() { close(s.quit) })
	err := s.reader.Close()
	<-s.done
	return err
}
