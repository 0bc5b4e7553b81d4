package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fileChunkSize = 64 << 10

// FileDevice serves camera frames from an image file and recordings from a
// media file, so the state machines can run without capture hardware.
type FileDevice struct {
	ImagePath string // decoded for Frame
	MediaPath string // returned in chunks by recorders
}

// Open returns a stream over the configured files. Video streams need
// ImagePath or MediaPath; audio-only streams need MediaPath.
func (d *FileDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Video && d.ImagePath == "" && d.MediaPath == "" {
		return nil, fmt.Errorf("no image or media file configured")
	}
	if !c.Video && d.MediaPath == "" {
		return nil, fmt.Errorf("no media file configured")
	}
	for _, p := range []string{d.ImagePath, d.MediaPath} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
	}
	return &fileStream{dev: d}, nil
}

type fileStream struct {
	dev *FileDevice

	mu      sync.Mutex
	stopped bool
}

func (s *fileStream) Frame(ctx context.Context) (image.Image, error) {
	if s.isStopped() {
		return nil, fmt.Errorf("stream stopped")
	}
	if s.dev.ImagePath == "" {
		return nil, fmt.Errorf("no image file configured")
	}
	f, err := os.Open(s.dev.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image %s: %w", s.dev.ImagePath, err)
	}
	return img, nil
}

func (s *fileStream) NewRecorder() (Recorder, error) {
	if s.isStopped() {
		return nil, fmt.Errorf("stream stopped")
	}
	if s.dev.MediaPath == "" {
		return nil, fmt.Errorf("no media file configured")
	}
	return &fileRecorder{path: s.dev.MediaPath}, nil
}

func (s *fileStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fileStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fileRecorder struct {
	path    string
	started bool
}

func (r *fileRecorder) Start() error {
	r.started = true
	return nil
}

// Stop returns the media file split into chunks, like a browser recorder
// delivering dataavailable events.
func (r *fileRecorder) Stop() ([][]byte, error) {
	if !r.started {
		return nil, nil
	}
	r.started = false

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("reading media file: %w", err)
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := min(fileChunkSize, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks, nil
}

func (r *fileRecorder) MIMEType() string {
	return MIMEForPath(r.path)
}

// MIMEForPath guesses a MIME type from a file extension.
func MIMEForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".webm":
		return "video/webm"
	case ".wav":
		return "audio/wav"
	case ".mp4":
		return "video/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// FilePreviews writes previews to temporary files and removes them on revoke.
type FilePreviews struct {
	Dir string // defaults to os.TempDir()
}

func (p *FilePreviews) Create(data []byte, mimeType string) (string, error) {
	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = exts[0]
	}
	f, err := os.CreateTemp(p.Dir, "sdgchat-preview-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating preview file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing preview file: %w", err)
	}
	return f.Name(), nil
}

func (p *FilePreviews) Revoke(path string) {
	os.Remove(path)
}
