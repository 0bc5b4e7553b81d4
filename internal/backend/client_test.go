package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestChat(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"reply":"hello","session_id":"session_new"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	resp, err := c.Chat(context.Background(), ChatRequest{
		Message:   "hi",
		Username:  "alice",
		SessionID: "session_old",
		Mode:      ModeSustainability,
		Image:     "data:image/jpeg;base64,AAAA",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Reply != "hello" || resp.SessionID != "session_new" {
		t.Errorf("resp = %+v", resp)
	}
	if got.Username != "alice" || got.Image == "" || got.Video != "" {
		t.Errorf("request = %+v", got)
	}
}

func TestChat_OmitsEmptyMedia(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		fmt.Fprint(w, `{"reply":"ok"}`)
	}))
	defer srv.Close()

	NewClient(srv.URL, 0).Chat(context.Background(), ChatRequest{Message: "hi"})
	for _, k := range []string{"image", "video", "video_context"} {
		if _, ok := raw[k]; ok {
			t.Errorf("request carried empty %q field", k)
		}
	}
	if _, ok := raw["session_id"]; !ok {
		t.Error("session_id must always be sent")
	}
}

func TestChat_StatusErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Chat(context.Background(), ChatRequest{Message: "hi"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusBadGateway || se.Body != "boom" {
		t.Errorf("StatusError = %+v", se)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestAudioToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req AudioRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.EnvironmentMemory) != 1 {
			t.Errorf("environment_memory = %v", req.EnvironmentMemory)
		}
		fmt.Fprint(w, `{"text":"turn off the lights","environmental_context":"fan humming"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).AudioToText(context.Background(), AudioRequest{
		Audio:             "data:audio/webm;base64,AAAA",
		EnvironmentMemory: []string{"Today at 10:00 (image):"},
	})
	if err != nil {
		t.Fatalf("AudioToText: %v", err)
	}
	if resp.Text != "turn off the lights" || resp.EnvironmentalContext != "fan humming" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAudioToText_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"Invalid audio data format"}`)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).AudioToText(context.Background(), AudioRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversation/personal-assistant/alice smith" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"messages":[{"user_message":"hi","bot_response":"hey","timestamp":"2026-10-16T10:00:00.123456"}]}`)
	}))
	defer srv.Close()

	msgs, err := NewClient(srv.URL, time.Second).Conversation(context.Background(), ModePersonalAssistant, "alice smith")
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Mode != ModePersonalAssistant || msgs[0].BotResponse != "hey" {
		t.Fatalf("msgs = %+v", msgs)
	}
	ts, err := msgs[0].Time()
	if err != nil {
		t.Fatalf("Time: %v", err)
	}
	if ts.Hour() != 10 || ts.Nanosecond() != 123456000 {
		t.Errorf("Time = %v", ts)
	}
}

func TestConversation_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"messages":null}`)
	}))
	defer srv.Close()

	msgs, err := NewClient(srv.URL, time.Second).Conversation(context.Background(), ModeSustainability, "bob")
	if err != nil || msgs == nil || len(msgs) != 0 {
		t.Errorf("msgs = %v, err = %v", msgs, err)
	}
}

func TestLoginAndRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		switch {
		case r.URL.Path == "/api/auth/register":
			fmt.Fprintf(w, `{"success":true,"username":%q}`, creds.Username)
		case creds.Password == "right":
			fmt.Fprintf(w, `{"success":true,"username":%q}`, creds.Username)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"success":false,"error":"Invalid username or password"}`)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	if resp, err := c.Register(ctx, "alice", "right"); err != nil || resp.Username != "alice" {
		t.Errorf("Register = %+v, %v", resp, err)
	}
	if _, err := c.Login(ctx, "alice", "right"); err != nil {
		t.Errorf("Login: %v", err)
	}
	_, err := c.Login(ctx, "alice", "wrong")
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("err = %v, want ErrAuthFailed", err)
	}
}

func TestLocketStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/locket/status/alice" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"connected":true}`)
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL, time.Second).LocketStatus(context.Background(), "alice")
	if err != nil || !st.Connected {
		t.Errorf("status = %+v, err = %v", st, err)
	}
}

func TestValidMode(t *testing.T) {
	if !ValidMode(ModeSustainability) || !ValidMode(ModePersonalAssistant) || ValidMode("pirate") {
		t.Error("ValidMode misclassified a mode")
	}
}
