// Package devserver is an offline stand-in for the chat backend. It speaks
// the backend's HTTP contract with canned replies so the client can be run
// and tested without the real service.
package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sdgteacher/sdgchat/internal/backend"
	"github.com/sdgteacher/sdgchat/internal/capture"
	"github.com/sdgteacher/sdgchat/internal/storage"
)

// maxRequestBodySize bounds request bodies; media arrives inline as data URIs.
const maxRequestBodySize = 32 << 20

const (
	keyUserPrefix   = "dev:user:"
	keyConvPrefix   = "dev:conv:"
	keyLocketPrefix = "dev:locket:"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Deps wires the handler.
type Deps struct {
	KV    storage.KV
	Clock Clock
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type server struct {
	kv    storage.KV
	clock Clock
	cost  int

	// mu serialises read-modify-write of conversations and users.
	mu sync.Mutex
}

// NewHandler returns the development backend's router.
func NewHandler(deps Deps) http.Handler {
	s := &server{kv: deps.KV, clock: deps.Clock, cost: deps.BcryptCost}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/audio-to-text", s.handleAudioToText)
	r.Get("/conversation/{mode}/{username}", s.handleConversation)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/locket/status/{username}", s.handleGetLocket)
		r.Post("/locket/status/{username}", s.handleSetLocket)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req backend.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Mode == "" {
		req.Mode = backend.ModeSustainability
	}
	if !backend.ValidMode(req.Mode) {
		httpError(w, http.StatusBadRequest, "invalid mode %q", req.Mode)
		return
	}
	if req.Username == "" {
		req.Username = "User"
	}
	if req.SessionID == "" {
		req.SessionID = "session_" + uuid.NewString()
	}

	reply := cannedReply(req)
	msg := backend.Message{
		UserMessage: req.Message,
		BotResponse: reply,
		Timestamp:   s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.appendMessage(req.Mode, req.Username, msg); err != nil {
		// The reply still goes out; only history is lost.
		slog.Error("saving conversation", "username", req.Username, "mode", req.Mode, "error", err)
	}

	writeJSON(w, backend.ChatResponse{Reply: reply, SessionID: req.SessionID})
}

func (s *server) handleAudioToText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req backend.AudioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if req.Audio == "" {
		httpError(w, http.StatusBadRequest, "No audio data provided")
		return
	}
	mime, data, err := capture.DecodeDataURI(req.Audio)
	if err != nil {
		httpError(w, http.StatusBadRequest, "Invalid audio data format")
		return
	}

	resp := backend.AudioResponse{Text: fmt.Sprintf("(%d bytes of %s)", len(data), mime)}
	if req.Mode == backend.ModePersonalAssistant {
		resp.EnvironmentalContext = "quiet indoor room with a faint fan hum"
		resp.Setting = "indoor"
	}
	writeJSON(w, resp)
}

func (s *server) handleConversation(w http.ResponseWriter, r *http.Request) {
	mode := chi.URLParam(r, "mode")
	username := chi.URLParam(r, "username")
	if !backend.ValidMode(mode) {
		httpError(w, http.StatusBadRequest, "Invalid mode. Must be 'sustainability' or 'personal-assistant'")
		return
	}

	msgs, err := s.loadMessages(mode, username)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to load conversation: %v", err)
		return
	}
	writeJSON(w, backend.ConversationResponse{Messages: msgs})
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyUserPrefix + creds.Username
	if _, err := s.kv.Get(key); err == nil {
		writeAuth(w, http.StatusConflict, backend.AuthResponse{Error: "Username already exists"})
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeAuth(w, http.StatusInternalServerError, backend.AuthResponse{Error: "Registration failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.cost)
	if err != nil {
		writeAuth(w, http.StatusBadRequest, backend.AuthResponse{Error: err.Error()})
		return
	}
	if err := s.kv.Set(key, string(hash)); err != nil {
		writeAuth(w, http.StatusInternalServerError, backend.AuthResponse{Error: "Registration failed"})
		return
	}

	slog.Info("registered user", "username", creds.Username)
	writeAuth(w, http.StatusOK, backend.AuthResponse{Success: true, Username: creds.Username})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	hash, err := s.kv.Get(keyUserPrefix + creds.Username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password))
	}
	if err != nil {
		writeAuth(w, http.StatusUnauthorized, backend.AuthResponse{Error: "Invalid username or password"})
		return
	}
	writeAuth(w, http.StatusOK, backend.AuthResponse{Success: true, Username: creds.Username})
}

func (s *server) handleGetLocket(w http.ResponseWriter, r *http.Request) {
	v, err := s.kv.Get(keyLocketPrefix + chi.URLParam(r, "username"))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusInternalServerError, "failed to read locket status: %v", err)
		return
	}
	writeJSON(w, backend.LocketStatus{Connected: v == "true"})
}

func (s *server) handleSetLocket(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var st backend.LocketStatus
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	username := chi.URLParam(r, "username")
	if err := s.kv.Set(keyLocketPrefix+username, fmt.Sprint(st.Connected)); err != nil {
		httpError(w, http.StatusInternalServerError, "failed to save locket status: %v", err)
		return
	}
	slog.Info("locket status set", "username", username, "connected", st.Connected)
	writeJSON(w, st)
}

func (s *server) appendMessage(mode, username string, msg backend.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.loadMessages(mode, username)
	if err != nil {
		return err
	}
	data, err := json.Marshal(append(msgs, msg))
	if err != nil {
		return fmt.Errorf("marshaling conversation: %w", err)
	}
	return s.kv.Set(conversationKey(mode, username), string(data))
}

func (s *server) loadMessages(mode, username string) ([]backend.Message, error) {
	raw, err := s.kv.Get(conversationKey(mode, username))
	if errors.Is(err, storage.ErrNotFound) {
		return []backend.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []backend.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		slog.Warn("malformed stored conversation, starting over", "mode", mode, "username", username, "error", err)
		return []backend.Message{}, nil
	}
	return msgs, nil
}

func conversationKey(mode, username string) string {
	return keyConvPrefix + mode + ":" + username
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (backend.Credentials, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	defer r.Body.Close()

	var creds backend.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeAuth(w, http.StatusBadRequest, backend.AuthResponse{Error: "invalid request body"})
		return creds, false
	}
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		writeAuth(w, http.StatusBadRequest, backend.AuthResponse{Error: "Username and password are required"})
		return creds, false
	}
	return creds, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAuth(w http.ResponseWriter, code int, resp backend.AuthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// httpError writes the backend's flat {"error": "..."} shape.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf(format, args...)})
}
