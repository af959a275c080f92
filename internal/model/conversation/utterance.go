package conversation

import "time"

// Role 标识一段话的说话方。
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleSystem  Role = "system"
)

// Speaker reports whether the role may appear in a transcript.
func (r Role) Speaker() bool {
	return r == RoleDoctor || r == RolePatient
}

// Utterance is one spoken turn together with its rendering in the
// counterpart's language.
type Utterance struct {
	Role       Role      `json:"role"`
	Text       string    `json:"text"`
	Translated string    `json:"translated,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IsRepeat   bool      `json:"isRepeat,omitempty"`
}
