package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"
)

// State is a camera machine state.
type State int

const (
	Idle State = iota
	CameraOpen
	Capturing
	PreviewReady
	Recording
	RecordingComplete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CameraOpen:
		return "camera-open"
	case Capturing:
		return "capturing"
	case PreviewReady:
		return "preview-ready"
	case Recording:
		return "recording"
	case RecordingComplete:
		return "recording-complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults for CameraConfig zero values.
const (
	DefaultImageQuality = 85
	DefaultRecordLimit  = 30 * time.Second
)

// CameraConfig tunes a Camera. Zero values select the defaults.
type CameraConfig struct {
	ImageQuality int           // JPEG quality for stills
	RecordLimit  time.Duration // recordings stop automatically after this long
	Previews     Previews
	Clock        Clock
}

// Camera drives one camera overlay: open, still capture, timed recording,
// preview and upload. At most one Media is staged at a time, and every stream
// it opens is stopped on the way out of an open state.
//
// Methods are safe for concurrent use; the recording countdown fires on its
// own goroutine.
type Camera struct {
	device   Device
	previews Previews
	clock    Clock
	quality  int
	limit    time.Duration

	// OnAutoStop, if set, is called after the countdown stops a recording.
	OnAutoStop func()

	mu       sync.Mutex
	state    State
	stream   Stream
	recorder Recorder
	timer    Timer
	gen      int
	deadline time.Time
	blob     []byte
	blobMIME string
	preview  string
	staged   *Media
}

// NewCamera creates a Camera on device.
func NewCamera(device Device, cfg CameraConfig) *Camera {
	c := &Camera{
		device:   device,
		previews: cfg.Previews,
		clock:    cfg.Clock,
		quality:  cfg.ImageQuality,
		limit:    cfg.RecordLimit,
	}
	if c.previews == nil {
		c.previews = nopPreviews{}
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.quality <= 0 || c.quality > 100 {
		c.quality = DefaultImageQuality
	}
	if c.limit <= 0 {
		c.limit = DefaultRecordLimit
	}
	return c
}

// State returns the current state.
func (c *Camera) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Staged returns the staged media without clearing it.
func (c *Camera) Staged() (Media, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staged == nil {
		return Media{}, false
	}
	return *c.staged, true
}

// Preview returns the current preview handle, if any.
func (c *Camera) Preview() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// Open discards any staged media and previous stream and opens the camera,
// with the microphone too when withAudio is set.
func (c *Camera) Open(ctx context.Context, withAudio bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()

	stream, err := c.device.Open(ctx, Constraints{
		Video:      true,
		Audio:      withAudio,
		Width:      640,
		Height:     480,
		FacingMode: "user",
	})
	if err != nil {
		slog.Warn("camera unavailable", "error", err)
		return fmt.Errorf("opening camera: %w: %w", ErrDeviceUnavailable, err)
	}

	c.stream = stream
	c.state = CameraOpen
	return nil
}

// CaptureStill grabs the current frame, stages it as a JPEG and closes the
// stream.
func (c *Camera) CaptureStill(ctx context.Context) (Media, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CameraOpen {
		return Media{}, fmt.Errorf("capture still from %s: %w", c.state, ErrInvalidState)
	}
	c.state = Capturing

	frame, err := c.stream.Frame(ctx)
	if err != nil {
		c.resetLocked()
		return Media{}, fmt.Errorf("grabbing frame: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: c.quality}); err != nil {
		c.resetLocked()
		return Media{}, fmt.Errorf("encoding jpeg: %w", err)
	}
	c.teardownLocked()

	c.setPreviewLocked(buf.Bytes(), "image/jpeg")
	c.staged = &Media{Data: EncodeDataURI("image/jpeg", buf.Bytes()), Type: KindImage}
	c.state = PreviewReady
	return *c.staged, nil
}

// StartRecording starts recording the open stream and arms the countdown.
func (c *Camera) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CameraOpen {
		return fmt.Errorf("start recording from %s: %w", c.state, ErrInvalidState)
	}
	return c.startRecordingLocked()
}

// Remaining returns the time left before the recording stops itself.
func (c *Camera) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return 0
	}
	if d := c.deadline.Sub(c.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// StopRecording stops the recording and creates its preview.
func (c *Camera) StopRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Recording {
		return fmt.Errorf("stop recording from %s: %w", c.state, ErrInvalidState)
	}
	return c.stopRecordingLocked()
}

// Rerecord discards the finished recording and records again on the same stream.
func (c *Camera) Rerecord() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != RecordingComplete {
		return fmt.Errorf("rerecord from %s: %w", c.state, ErrInvalidState)
	}
	c.discardBlobLocked()
	return c.startRecordingLocked()
}

// SendRecording stages the finished recording as video media with an
// optional free-text context and closes the stream.
func (c *Camera) SendRecording(videoContext string) (Media, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != RecordingComplete {
		return Media{}, fmt.Errorf("send recording from %s: %w", c.state, ErrInvalidState)
	}

	c.staged = &Media{
		Data:    EncodeDataURI(c.blobMIME, c.blob),
		Type:    KindVideo,
		Context: videoContext,
	}
	c.blob, c.blobMIME = nil, ""
	c.teardownLocked()
	c.state = PreviewReady
	return *c.staged, nil
}

// Upload stages a file chosen by the user, discarding any open stream and
// previously staged media.
func (c *Camera) Upload(data []byte, mime string) (Media, error) {
	kind := KindForMIME(mime)
	if kind != KindImage && kind != KindVideo {
		return Media{}, fmt.Errorf("upload %q: %w", mime, ErrUnsupportedMedia)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.setPreviewLocked(data, mime)
	c.staged = &Media{Data: EncodeDataURI(mime, data), Type: kind}
	c.state = PreviewReady
	return *c.staged, nil
}

// Take hands over the staged media and clears it.
func (c *Camera) Take() (Media, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staged == nil {
		return Media{}, false
	}
	m := *c.staged
	c.resetLocked()
	return m, true
}

// Cancel closes the overlay from any state, releasing the stream, the
// countdown, the recording and any staged media.
func (c *Camera) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

// Clear discards staged media. It is the preview's clear action and has the
// same effect as Cancel.
func (c *Camera) Clear() {
	c.Cancel()
}

func (c *Camera) startRecordingLocked() error {
	rec, err := c.stream.NewRecorder()
	if err == nil {
		err = rec.Start()
	}
	if err != nil {
		c.resetLocked()
		return fmt.Errorf("starting recorder: %w", err)
	}

	c.recorder = rec
	c.gen++
	gen := c.gen
	c.deadline = c.clock.Now().Add(c.limit)
	c.timer = c.clock.AfterFunc(c.limit, func() { c.autoStop(gen) })
	c.state = Recording
	return nil
}

func (c *Camera) autoStop(gen int) {
	c.mu.Lock()
	if c.state != Recording || c.gen != gen {
		c.mu.Unlock()
		return
	}
	err := c.stopRecordingLocked()
	cb := c.OnAutoStop
	c.mu.Unlock()

	if err != nil {
		slog.Warn("auto-stopping recording", "error", err)
		return
	}
	slog.Debug("recording limit reached", "limit", c.limit)
	if cb != nil {
		cb()
	}
}

func (c *Camera) stopRecordingLocked() error {
	c.stopTimerLocked()

	rec := c.recorder
	c.recorder = nil
	chunks, err := rec.Stop()
	if err != nil {
		c.resetLocked()
		return fmt.Errorf("stopping recorder: %w", err)
	}

	c.blob = bytes.Join(chunks, nil)
	c.blobMIME = rec.MIMEType()
	c.setPreviewLocked(c.blob, c.blobMIME)
	c.state = RecordingComplete
	return nil
}

// setPreviewLocked replaces the preview handle, revoking the old one.
func (c *Camera) setPreviewLocked(data []byte, mime string) {
	c.revokePreviewLocked()
	url, err := c.previews.Create(data, mime)
	if err != nil {
		slog.Warn("creating preview", "error", err)
		return
	}
	c.preview = url
}

func (c *Camera) revokePreviewLocked() {
	if c.preview != "" {
		c.previews.Revoke(c.preview)
		c.preview = ""
	}
}

func (c *Camera) discardBlobLocked() {
	c.blob, c.blobMIME = nil, ""
	c.revokePreviewLocked()
}

func (c *Camera) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.deadline = time.Time{}
}

// teardownLocked releases the countdown, the recorder and the stream.
func (c *Camera) teardownLocked() {
	c.stopTimerLocked()
	if c.recorder != nil {
		if _, err := c.recorder.Stop(); err != nil {
			slog.Debug("stopping abandoned recorder", "error", err)
		}
		c.recorder = nil
	}
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
}

// resetLocked returns the machine to Idle with nothing held.
func (c *Camera) resetLocked() {
	c.teardownLocked()
	c.discardBlobLocked()
	c.staged = nil
	c.state = Idle
}
