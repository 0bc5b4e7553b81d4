package chat

import (
	"time"

	"github.com/sdgteacher/sdgchat/internal/backend"
)

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one rendered line of the transcript.
type Entry struct {
	Role   string
	Text   string
	Mode   string
	Time   time.Time
	Media  string // capture kind sent with a user entry
	Locket bool   // message arrived through the locket device
	Failed bool   // apology for a failed request
}

// entriesFor expands a stored message into transcript entries. Paired
// messages yield the user turn then the reply.
func entriesFor(m backend.Message) []Entry {
	ts, _ := m.Time()
	base := Entry{Mode: m.Mode, Time: ts, Locket: m.Locket}

	if m.UserMessage != "" || m.BotResponse != "" {
		var out []Entry
		if m.UserMessage != "" {
			e := base
			e.Role, e.Text = RoleUser, m.UserMessage
			out = append(out, e)
		}
		if m.BotResponse != "" {
			e := base
			e.Role, e.Text = RoleAssistant, m.BotResponse
			out = append(out, e)
		}
		return out
	}

	if m.Content == "" {
		return nil
	}
	e := base
	e.Text = m.Content
	e.Role = RoleAssistant
	if m.Role == RoleUser {
		e.Role = RoleUser
	}
	return []Entry{e}
}
