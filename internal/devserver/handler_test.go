package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sdgteacher/sdgchat/internal/backend"
	"github.com/sdgteacher/sdgchat/internal/memory"
	"github.com/sdgteacher/sdgchat/internal/storage"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func setupHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewHandler(Deps{
		KV:         store,
		Clock:      &stepClock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
		BcryptCost: bcrypt.MinCost,
	})
	return h, store
}

func do(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	h, _ := setupHandler(t)
	rr := do(t, h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ok") {
		t.Errorf("health = %d %s", rr.Code, rr.Body.String())
	}
}

func TestChat_StoresConversation(t *testing.T) {
	h, _ := setupHandler(t)

	rr := do(t, h, http.MethodPost, "/chat", `{"message":"hello","username":"alice","session_id":"s1","mode":"sustainability"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp backend.ChatResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.SessionID != "s1" || !strings.Contains(resp.Reply, "hello") {
		t.Errorf("resp = %+v", resp)
	}

	do(t, h, http.MethodPost, "/chat", `{"message":"second","username":"alice","session_id":"s1","mode":"sustainability"}`)
	do(t, h, http.MethodPost, "/chat", `{"message":"other mode","username":"alice","session_id":"s1","mode":"personal-assistant"}`)

	rr = do(t, h, http.MethodGet, "/conversation/sustainability/alice", "")
	var conv backend.ConversationResponse
	json.NewDecoder(rr.Body).Decode(&conv)
	if len(conv.Messages) != 2 || conv.Messages[0].UserMessage != "hello" || conv.Messages[1].UserMessage != "second" {
		t.Errorf("messages = %+v", conv.Messages)
	}
	if conv.Messages[0].Timestamp >= conv.Messages[1].Timestamp {
		t.Errorf("timestamps not increasing: %q, %q", conv.Messages[0].Timestamp, conv.Messages[1].Timestamp)
	}
}

func TestChat_IssuesSessionID(t *testing.T) {
	h, _ := setupHandler(t)

	rr := do(t, h, http.MethodPost, "/chat", `{"message":"hi"}`)
	var resp backend.ChatResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if !strings.HasPrefix(resp.SessionID, "session_") {
		t.Errorf("session_id = %q", resp.SessionID)
	}
}

func TestChat_InvalidInput(t *testing.T) {
	h, _ := setupHandler(t)

	if rr := do(t, h, http.MethodPost, "/chat", `{bad json`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/chat", `{"message":"x","mode":"pirate"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad mode status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/conversation/pirate/alice", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad conversation mode status = %d", rr.Code)
	}
}

func TestChat_TourReplyIsDetectedAsTour(t *testing.T) {
	h, _ := setupHandler(t)

	rr := do(t, h, http.MethodPost, "/chat", `{"message":"Give me a tour of my office","video":"data:video/webm;base64,AAAA"}`)
	var resp backend.ChatResponse
	json.NewDecoder(rr.Body).Decode(&resp)

	if !memory.DetectTour("", resp.Reply) {
		t.Errorf("tour reply not recognised as a tour: %q", resp.Reply)
	}
	if items := memory.ExtractItems(resp.Reply); len(items) < 10 {
		t.Errorf("tour reply yielded only %v", items)
	}
}

func TestAudioToText(t *testing.T) {
	h, _ := setupHandler(t)

	rr := do(t, h, http.MethodPost, "/audio-to-text", `{"audio":"data:audio/webm;base64,AAAA","mode":"personal-assistant"}`)
	var resp backend.AudioResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Text == "" || resp.EnvironmentalContext == "" {
		t.Errorf("resp = %+v", resp)
	}

	rr = do(t, h, http.MethodPost, "/audio-to-text", `{"audio":"not a data uri"}`)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "Invalid audio data format") {
		t.Errorf("invalid audio = %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodPost, "/audio-to-text", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing audio status = %d", rr.Code)
	}
}

func TestAuth(t *testing.T) {
	h, store := setupHandler(t)

	rr := do(t, h, http.MethodPost, "/api/auth/register", `{"username":"alice","password":"s3cret"}`)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"success":true`) {
		t.Fatalf("register = %d %s", rr.Code, rr.Body.String())
	}

	hash, _ := store.Get(keyUserPrefix + "alice")
	if hash == "" || hash == "s3cret" {
		t.Errorf("password stored as %q", hash)
	}

	if rr := do(t, h, http.MethodPost, "/api/auth/register", `{"username":"alice","password":"x"}`); rr.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"s3cret"}`); rr.Code != http.StatusOK {
		t.Errorf("login status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/auth/login", `{"username":"nobody","password":"x"}`); rr.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodPost, "/api/auth/register", `{"username":"  ","password":"x"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("blank username status = %d", rr.Code)
	}
}

func TestLocketStatus(t *testing.T) {
	h, _ := setupHandler(t)

	rr := do(t, h, http.MethodGet, "/api/locket/status/alice", "")
	if !strings.Contains(rr.Body.String(), `"connected":false`) {
		t.Errorf("default status = %s", rr.Body.String())
	}

	do(t, h, http.MethodPost, "/api/locket/status/alice", `{"connected":true}`)
	rr = do(t, h, http.MethodGet, "/api/locket/status/alice", "")
	if !strings.Contains(rr.Body.String(), `"connected":true`) {
		t.Errorf("status after set = %s", rr.Body.String())
	}
}

// The real client works against the dev server end to end.
func TestClientAgainstDevServer(t *testing.T) {
	h, _ := setupHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := backend.NewClient(srv.URL, 5*time.Second)
	ctx := t.Context()

	if _, err := c.Register(ctx, "bob", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := c.Login(ctx, "bob", "nope"); err == nil {
		t.Error("login with wrong password succeeded")
	}
	if _, err := c.Chat(ctx, backend.ChatRequest{Message: "hi", Username: "bob", Mode: backend.ModePersonalAssistant}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	msgs, err := c.Conversation(ctx, backend.ModePersonalAssistant, "bob")
	if err != nil || len(msgs) != 1 {
		t.Errorf("Conversation = %v, %v", msgs, err)
	}
}
