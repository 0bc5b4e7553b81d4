package profile

import "time"

// MaxObservations bounds a profile's environment memory. Older entries are
// evicted first.
const MaxObservations = 50

// Observation types.
const (
	TypeImage = "image"
	TypeVideo = "video"
	TypeAudio = "audio"
)

// Profile is a named local user profile with its accumulated environment memory.
type Profile struct {
	Username          string        `json:"username"`
	SessionsCount     int           `json:"sessionsCount"`
	LastSession       string        `json:"lastSession"`
	CreatedAt         time.Time     `json:"createdAt"`
	LastAccess        time.Time     `json:"lastAccess"`
	EnvironmentMemory []Observation `json:"environmentMemory"`
	Background        string        `json:"background"`
	LivingSituation   string        `json:"livingSituation"`
}

// Observation is one structured memory entry derived from a chat exchange
// that carried media, or from an audio transcription with environmental context.
type Observation struct {
	Timestamp    time.Time `json:"timestamp"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Day          string    `json:"day"`
	Type         string    `json:"type"` // image, video or audio
	IsTour       bool      `json:"isTour"`
	UserMessage  string    `json:"userMessage"`
	FullResponse string    `json:"fullResponse"`
	Summary      string    `json:"summary"`
	Items        []string  `json:"items"`
}

// Stamp fills the timestamp and its derived date, time and weekday fields.
func (o *Observation) Stamp(t time.Time) {
	o.Timestamp = t
	o.Date = t.Format("2006-01-02")
	o.Time = t.Format("15:04")
	o.Day = t.Weekday().String()
}
