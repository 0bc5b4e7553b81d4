// Package capture implements the camera and microphone state machines that
// turn device streams into staged, base64-encoded media ready to send.
package capture

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrDeviceUnavailable wraps failures to acquire a camera or microphone.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrEmptyRecording is returned when an audio recording produced no data.
	ErrEmptyRecording = errors.New("recording is empty")
	// ErrInvalidState is returned when an action is not allowed in the current state.
	ErrInvalidState = errors.New("action not allowed in current capture state")
	// ErrUnsupportedMedia is returned for uploads that are neither image nor video.
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// Media kinds.
const (
	KindImage = "image"
	KindVideo = "video"
	KindAudio = "audio"
)

// Media is a captured, not-yet-sent payload. It lives in memory only.
type Media struct {
	Data    string // data URI
	Type    string // KindImage or KindVideo
	Context string // optional free text sent alongside a video
}

// Constraints describes the stream requested from a Device.
type Constraints struct {
	Video      bool
	Audio      bool
	Width      int
	Height     int
	FacingMode string
}

// Device acquires media streams.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an open device stream. Stop releases every track.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	NewRecorder() (Recorder, error)
	Stop()
}

// Recorder records a stream into data chunks.
type Recorder interface {
	Start() error
	Stop() ([][]byte, error)
	MIMEType() string
}

// Previews creates and revokes preview handles for recorded blobs.
type Previews interface {
	Create(data []byte, mime string) (string, error)
	Revoke(url string)
}

// Transcription is the result of transcribing an audio clip.
type Transcription struct {
	Text                 string
	EnvironmentalContext string
}

// Transcriber turns an audio data URI into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioDataURI string) (Transcription, error)
}

// Timer is a pending countdown.
type Timer interface {
	Stop() bool
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type nopPreviews struct{}

func (nopPreviews) Create([]byte, string) (string, error) { return "", nil }
func (nopPreviews) Revoke(string)                         {}
