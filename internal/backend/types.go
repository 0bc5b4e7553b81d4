package backend

import (
	"fmt"
	"time"
)

// Conversation modes.
const (
	ModeSustainability    = "sustainability"
	ModePersonalAssistant = "personal-assistant"
)

// Modes lists the supported conversation modes.
var Modes = []string{ModeSustainability, ModePersonalAssistant}

// ValidMode reports whether mode is a supported conversation mode.
func ValidMode(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ChatRequest is the body of POST /chat. Image and Video are data URIs.
type ChatRequest struct {
	Message      string `json:"message"`
	Username     string `json:"username"`
	SessionID    string `json:"session_id"`
	Mode         string `json:"mode"`
	Image        string `json:"image,omitempty"`
	Video        string `json:"video,omitempty"`
	VideoContext string `json:"video_context,omitempty"`
}

// ChatResponse is the reply to POST /chat.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id,omitempty"`
}

// AudioRequest is the body of POST /audio-to-text.
type AudioRequest struct {
	Audio             string   `json:"audio"`
	Username          string   `json:"username"`
	SessionID         string   `json:"session_id"`
	Mode              string   `json:"mode"`
	EnvironmentMemory []string `json:"environment_memory,omitempty"`
}

// AudioResponse is the reply to POST /audio-to-text.
type AudioResponse struct {
	Text                 string `json:"text,omitempty"`
	EnvironmentalContext string `json:"environmental_context,omitempty"`
	Setting              string `json:"setting,omitempty"`
	Error                string `json:"error,omitempty"`
}

// Message is one stored conversation entry. Older entries carry
// UserMessage/BotResponse pairs; newer ones carry Role/Content.
type Message struct {
	UserMessage string `json:"user_message,omitempty"`
	BotResponse string `json:"bot_response,omitempty"`
	Role        string `json:"role,omitempty"`
	Content     string `json:"content,omitempty"`
	Timestamp   string `json:"timestamp"`
	Locket      bool   `json:"locket,omitempty"`

	// Mode is set by the client after fetching; it is not part of the wire format.
	Mode string `json:"-"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// Time parses Timestamp. Timestamps without a zone are read as UTC.
func (m Message) Time() (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", m.Timestamp)
}

// ConversationResponse is the reply to GET /conversation/{mode}/{username}.
type ConversationResponse struct {
	Messages []Message `json:"messages"`
	Error    string    `json:"error,omitempty"`
}

// Credentials is the body of the login and register endpoints.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is the reply to the login and register endpoints.
type AuthResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	Error    string `json:"error,omitempty"`
}

// LocketStatus is the reply to GET /api/locket/status/{username}.
type LocketStatus struct {
	Connected bool `json:"connected"`
}
