package core

import "context"

// CaptureOptions mirrors the audio processing flags requested from the
// capture device.
type CaptureOptions struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultCaptureOptions enables every processing stage.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// AudioTrack is one local audio track. Enabled toggles transmission
// without releasing the device.
type AudioTrack interface {
	ID() string
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// LocalMediaSource is an acquired capture device.
type LocalMediaSource interface {
	Tracks() []AudioTrack
	// ReadLevels fills buf with frequency-domain magnitudes of the current
	// capture window and returns the number of bins written.
	ReadLevels(buf []byte) (int, error)
	Close() error
}

// MediaDevices acquires local capture. Acquisition failures are returned,
// never retried here.
type MediaDevices interface {
	Acquire(ctx context.Context, opts CaptureOptions) (LocalMediaSource, error)
}

// RemoteStream is an incoming peer media handle, opaque to the mesh.
type RemoteStream interface {
	ID() string
	PeerID() string
}
