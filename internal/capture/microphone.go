package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// AudioState is a microphone machine state.
type AudioState int

const (
	AudioIdle AudioState = iota
	AudioRecording
	AudioProcessing
)

func (s AudioState) String() string {
	switch s {
	case AudioIdle:
		return "idle"
	case AudioRecording:
		return "recording"
	case AudioProcessing:
		return "processing"
	default:
		return fmt.Sprintf("audio-state(%d)", int(s))
	}
}

// Microphone records a voice clip and hands it to a Transcriber.
type Microphone struct {
	device      Device
	transcriber Transcriber

	mu       sync.Mutex
	state    AudioState
	stream   Stream
	recorder Recorder
}

// NewMicrophone creates a Microphone on device that transcribes with t.
func NewMicrophone(device Device, t Transcriber) *Microphone {
	return &Microphone{device: device, transcriber: t}
}

// State returns the current state.
func (m *Microphone) State() AudioState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether a transcription is in flight. Input should be
// disabled while it is.
func (m *Microphone) Busy() bool {
	return m.State() == AudioProcessing
}

// Start opens the microphone and starts recording.
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != AudioIdle {
		return fmt.Errorf("start microphone from %s: %w", m.state, ErrInvalidState)
	}

	stream, err := m.device.Open(ctx, Constraints{Audio: true})
	if err != nil {
		slog.Warn("microphone unavailable", "error", err)
		return fmt.Errorf("opening microphone: %w: %w", ErrDeviceUnavailable, err)
	}

	rec, err := stream.NewRecorder()
	if err == nil {
		err = rec.Start()
	}
	if err != nil {
		stream.Stop()
		return fmt.Errorf("starting recorder: %w", err)
	}

	m.stream = stream
	m.recorder = rec
	m.state = AudioRecording
	return nil
}

// Stop ends the recording and transcribes it. An empty recording returns
// ErrEmptyRecording without calling the transcriber.
func (m *Microphone) Stop(ctx context.Context) (Transcription, error) {
	m.mu.Lock()
	if m.state != AudioRecording {
		state := m.state
		m.mu.Unlock()
		return Transcription{}, fmt.Errorf("stop microphone from %s: %w", state, ErrInvalidState)
	}

	rec := m.recorder
	chunks, err := rec.Stop()
	m.stream.Stop()
	m.stream, m.recorder = nil, nil

	if err != nil {
		m.state = AudioIdle
		m.mu.Unlock()
		return Transcription{}, fmt.Errorf("stopping recorder: %w", err)
	}
	data := bytes.Join(chunks, nil)
	if len(data) == 0 {
		m.state = AudioIdle
		m.mu.Unlock()
		return Transcription{}, ErrEmptyRecording
	}
	m.state = AudioProcessing
	m.mu.Unlock()

	res, err := m.transcriber.Transcribe(ctx, EncodeDataURI(rec.MIMEType(), data))

	m.mu.Lock()
	m.state = AudioIdle
	m.mu.Unlock()

	if err != nil {
		return Transcription{}, fmt.Errorf("transcribing audio: %w", err)
	}
	return res, nil
}

// Toggle starts recording when idle and stops and transcribes when
// recording. started reports which happened.
func (m *Microphone) Toggle(ctx context.Context) (res Transcription, started bool, err error) {
	switch m.State() {
	case AudioIdle:
		return Transcription{}, true, m.Start(ctx)
	case AudioRecording:
		res, err = m.Stop(ctx)
		return res, false, err
	default:
		return Transcription{}, false, fmt.Errorf("toggle while processing: %w", ErrInvalidState)
	}
}
