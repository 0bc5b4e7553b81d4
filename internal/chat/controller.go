// Package chat is the chat session controller: it sends turns with optional
// media to the backend, keeps the transcript, and feeds media exchanges into
// the environment memory of the active profile.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sdgteacher/sdgchat/internal/backend"
	"github.com/sdgteacher/sdgchat/internal/capture"
	"github.com/sdgteacher/sdgchat/internal/memory"
	"github.com/sdgteacher/sdgchat/internal/profile"
	"github.com/sdgteacher/sdgchat/internal/session"
	"github.com/sdgteacher/sdgchat/internal/storage"
)

const (
	// Apology is shown in the transcript when a chat request fails.
	Apology = "Sorry, I encountered an error. Please try again."

	placeholderImage = "📷 Sent an image"
	placeholderVideo = "🎥 Sent a video"

	// transcribeMemoryLines is how many recent observations accompany a
	// transcription request.
	transcribeMemoryLines = 5
)

var (
	// ErrEmptyMessage is returned when a send has neither text nor media.
	ErrEmptyMessage = errors.New("message has no text or media")
	// ErrInvalidMode is returned for an unknown conversation mode.
	ErrInvalidMode = errors.New("invalid conversation mode")
)

// Backend is the subset of the chat backend the controller uses.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (backend.ChatResponse, error)
	AudioToText(ctx context.Context, req backend.AudioRequest) (backend.AudioResponse, error)
	Conversation(ctx context.Context, mode, username string) ([]backend.Message, error)
}

// Speaker reads replies aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config wires a Controller. Backend, Profiles, Session and KV are required.
type Config struct {
	Backend   Backend
	Profiles  *profile.Manager
	Session   *session.Identity
	KV        storage.KV
	Extractor *memory.Extractor
	Speaker   Speaker
	Clock     Clock

	// DefaultMode applies when no mode preference has been saved.
	DefaultMode string
}

// Reply is the outcome of a successful send.
type Reply struct {
	Text string
	// Observation is set when the exchange carried media.
	Observation *profile.Observation
}

// Controller owns the state of one chat session. Methods are safe for
// concurrent use; a reply that arrives after the user has moved on is
// applied to the current state.
type Controller struct {
	backend   Backend
	profiles  *profile.Manager
	session   *session.Identity
	kv        storage.KV
	extractor *memory.Extractor
	speaker   Speaker
	clock     Clock

	mu         sync.Mutex
	username   string
	mode       string
	transcript []Entry
}

// New creates a Controller, restoring the saved username and mode.
func New(cfg Config) *Controller {
	c := &Controller{
		backend:   cfg.Backend,
		profiles:  cfg.Profiles,
		session:   cfg.Session,
		kv:        cfg.KV,
		extractor: cfg.Extractor,
		speaker:   cfg.Speaker,
		clock:     cfg.Clock,
		mode:      cfg.DefaultMode,
	}
	if c.extractor == nil {
		c.extractor = memory.New(nil)
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if !backend.ValidMode(c.mode) {
		c.mode = backend.ModeSustainability
	}

	if mode, err := c.kv.Get(storage.KeyChatMode); err == nil && backend.ValidMode(mode) {
		c.mode = mode
	}
	if username, err := c.kv.Get(storage.KeyUsername); err == nil {
		c.username = username
	}
	return c
}

// Username returns the active username, or "" when none is selected.
func (c *Controller) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Mode returns the active conversation mode.
func (c *Controller) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SessionID returns the session id the next request will carry.
func (c *Controller) SessionID() string {
	return c.session.ID()
}

// Transcript returns a copy of the transcript.
func (c *Controller) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// StartSession selects (creating if needed) the profile for username and
// saves it as the active user.
func (c *Controller) StartSession(ctx context.Context, username string) (profile.Profile, error) {
	p, err := c.profiles.GetOrCreateProfile(username, c.session.ID())
	if err != nil {
		return profile.Profile{}, fmt.Errorf("starting session: %w", err)
	}
	if err := c.kv.Set(storage.KeyUsername, p.Username); err != nil {
		return profile.Profile{}, fmt.Errorf("saving username: %w", err)
	}

	c.mu.Lock()
	c.username = p.Username
	c.mu.Unlock()

	slog.Info("chat session started", "username", p.Username, "sessions", p.SessionsCount, "session_id", c.session.ID())
	return p, nil
}

// EndSession forgets the active user and clears the transcript.
func (c *Controller) EndSession() error {
	c.mu.Lock()
	c.username = ""
	c.transcript = nil
	c.mu.Unlock()

	if err := c.kv.Delete(storage.KeyUsername); err != nil {
		return fmt.Errorf("clearing username: %w", err)
	}
	return nil
}

// SetMode switches the conversation persona. Staged media and the
// transcript are untouched.
func (c *Controller) SetMode(mode string) error {
	if !backend.ValidMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()

	if err := c.kv.Set(storage.KeyChatMode, mode); err != nil {
		return fmt.Errorf("saving mode: %w", err)
	}
	return nil
}

// SendMessage sends one turn. A send with neither text nor media returns
// ErrEmptyMessage without contacting the backend. On failure the apology is
// appended to the transcript and the error is returned.
func (c *Controller) SendMessage(ctx context.Context, text string, media *capture.Media) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" && media == nil {
		return Reply{}, ErrEmptyMessage
	}

	c.mu.Lock()
	username, mode := c.username, c.mode
	c.mu.Unlock()

	req := backend.ChatRequest{
		Message:   text,
		Username:  username,
		SessionID: c.session.ID(),
		Mode:      mode,
	}
	userEntry := Entry{Role: RoleUser, Text: text, Mode: mode, Time: c.clock.Now()}
	if media != nil {
		switch media.Type {
		case capture.KindImage:
			req.Image = media.Data
			userEntry.Media = capture.KindImage
		case capture.KindVideo:
			req.Video = media.Data
			req.VideoContext = media.Context
			userEntry.Media = capture.KindVideo
		default:
			return Reply{}, fmt.Errorf("sending %q media: %w", media.Type, capture.ErrUnsupportedMedia)
		}
		if text == "" {
			userEntry.Text = placeholder(media.Type)
		}
	}
	c.appendEntries(userEntry)

	resp, err := c.backend.Chat(ctx, req)
	if err != nil {
		slog.Error("chat request failed", "error", err, "mode", mode)
		c.appendEntries(Entry{Role: RoleAssistant, Text: Apology, Mode: mode, Time: c.clock.Now(), Failed: true})
		return Reply{}, err
	}

	if err := c.session.Adopt(resp.SessionID); err != nil {
		slog.Warn("adopting session id", "error", err)
	}
	c.appendEntries(Entry{Role: RoleAssistant, Text: resp.Reply, Mode: mode, Time: c.clock.Now()})

	reply := Reply{Text: resp.Reply}
	if media != nil {
		userMessage := text
		if userMessage == "" {
			userMessage = media.Context
		}
		o := c.extractor.Extract(media.Type, userMessage, resp.Reply, c.clock.Now())
		c.record(username, o)
		reply.Observation = &o
	}

	c.speak(ctx, resp.Reply)
	return reply, nil
}

// LoadHistory fetches both modes' stored conversations concurrently, merges
// them in timestamp order and replaces the transcript with the result. A
// mode that fails to load contributes no messages.
func (c *Controller) LoadHistory(ctx context.Context, username string) ([]backend.Message, error) {
	results := make([][]backend.Message, len(backend.Modes))

	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range backend.Modes {
		g.Go(func() error {
			msgs, err := c.backend.Conversation(gctx, mode, username)
			if err != nil {
				slog.Warn("loading history", "mode", mode, "username", username, "error", err)
				return nil
			}
			results[i] = msgs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []backend.Message
	for _, msgs := range results {
		merged = append(merged, msgs...)
	}
	sortMessages(merged)

	entries := make([]Entry, 0, 2*len(merged))
	for _, m := range merged {
		entries = append(entries, entriesFor(m)...)
	}

	c.mu.Lock()
	c.transcript = entries
	c.mu.Unlock()

	slog.Debug("history loaded", "username", username, "messages", len(merged))
	return merged, nil
}

// Transcribe sends an audio clip to the backend along with recent
// environment memory. Environmental context in the reply is recorded as an
// audio observation. It satisfies capture.Transcriber.
func (c *Controller) Transcribe(ctx context.Context, audioDataURI string) (capture.Transcription, error) {
	c.mu.Lock()
	username, mode := c.username, c.mode
	c.mu.Unlock()

	resp, err := c.backend.AudioToText(ctx, backend.AudioRequest{
		Audio:             audioDataURI,
		Username:          username,
		SessionID:         c.session.ID(),
		Mode:              mode,
		EnvironmentMemory: c.recentMemory(username),
	})
	if err != nil {
		return capture.Transcription{}, err
	}

	if resp.EnvironmentalContext != "" {
		o := profile.Observation{
			Type:         profile.TypeAudio,
			UserMessage:  resp.Text,
			FullResponse: resp.EnvironmentalContext,
			Summary:      resp.EnvironmentalContext,
			Items:        c.extractor.ExtractItems(resp.EnvironmentalContext),
		}
		o.Stamp(c.clock.Now())
		c.record(username, o)
	}

	return capture.Transcription{Text: resp.Text, EnvironmentalContext: resp.EnvironmentalContext}, nil
}

var _ capture.Transcriber = (*Controller)(nil)

// Memory returns the environment memory for the active user, or the
// profile-less fallback when no user is active.
func (c *Controller) Memory() ([]profile.Observation, error) {
	return c.memoryFor(c.Username())
}

func (c *Controller) memoryFor(username string) ([]profile.Observation, error) {
	if username == "" {
		return c.profiles.FallbackMemory()
	}
	p, err := c.profiles.GetProfile(username)
	if err != nil {
		return nil, err
	}
	return p.EnvironmentMemory, nil
}

// recentMemory formats the newest transcribeMemoryLines observations in the
// same order chat requests use: tours first, then newest first.
func (c *Controller) recentMemory(username string) []string {
	mem, err := c.memoryFor(username)
	if err != nil {
		slog.Debug("no environment memory for transcription", "username", username, "error", err)
		return nil
	}
	if len(mem) > transcribeMemoryLines {
		mem = mem[len(mem)-transcribeMemoryLines:]
	}
	return memory.FormatForBackend(mem, c.clock.Now())
}

// record persists an observation. Failures are logged; the exchange itself
// already succeeded.
func (c *Controller) record(username string, o profile.Observation) {
	var err error
	if username == "" {
		err = c.profiles.AppendFallback(o)
	} else {
		err = c.profiles.AppendObservation(username, o)
	}
	if err != nil {
		slog.Warn("recording observation", "username", username, "type", o.Type, "error", err)
		return
	}
	slog.Debug("observation recorded", "username", username, "type", o.Type, "tour", o.IsTour, "items", len(o.Items))
}

func (c *Controller) speak(ctx context.Context, text string) {
	if c.speaker == nil || text == "" {
		return
	}
	if err := c.speaker.Speak(ctx, text); err != nil {
		slog.Warn("speaking reply", "error", err)
	}
}

func (c *Controller) appendEntries(entries ...Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript = append(c.transcript, entries...)
}

func placeholder(kind string) string {
	if kind == capture.KindVideo {
		return placeholderVideo
	}
	return placeholderImage
}

// sortMessages orders messages by timestamp, oldest first. Unparseable
// timestamps compare as strings.
func sortMessages(msgs []backend.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		ti, erri := msgs[i].Time()
		tj, errj := msgs[j].Time()
		if erri == nil && errj == nil {
			return ti.Before(tj)
		}
		return msgs[i].Timestamp < msgs[j].Timestamp
	})
}
