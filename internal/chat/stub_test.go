package chat

import (
	"context"
	"errors"
	"image"

	"github.com/sdgteacher/sdgchat/internal/capture"
)

type stubDevice struct{}

func (stubDevice) Open(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	return stubStream{}, nil
}

type stubStream struct{}

func (stubStream) Frame(ctx context.Context) (image.Image, error) {
	return nil, errors.New("no camera")
}

func (stubStream) NewRecorder() (capture.Recorder, error) { return &stubRecorder{}, nil }

func (stubStream) Stop() {}

type stubRecorder struct{}

func (*stubRecorder) Start() error { return nil }

func (*stubRecorder) Stop() ([][]byte, error) { return [][]byte{[]byte("pcm")}, nil }

func (*stubRecorder) MIMEType() string { return "audio/webm" }
