package relay

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Inbound event names (client -> relay).
const (
	EventJoin  = "join"
	EventLeave = "leave"

	EventCommentCreate = "comment:create"
	EventCommentUpdate = "comment:update"
	EventCommentDelete = "comment:delete"

	EventAnswerCreate      = "answer:create"
	EventAnswerUpdate      = "answer:update"
	EventAnswerDelete      = "answer:delete"
	EventAnswerStateChange = "answer:state_change"
)

// Outbound event names (relay -> room members).
const (
	EventCommentCreated = "comment:created"
	EventCommentUpdated = "comment:updated"
	EventCommentDeleted = "comment:deleted"

	EventAnswerCreated      = "answer:created"
	EventAnswerUpdated      = "answer:updated"
	EventAnswerDeleted      = "answer:deleted"
	EventAnswerStateChanged = "answer:state_changed"

	EventCommentError = "comment:error"
	EventAnswerError  = "answer:error"
)

// Frame is the wire envelope for every message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EntityID is a permissive identifier. Clients send both JSON numbers and
// strings for the same field, and the original form must survive the round
// trip back out to other room members.
type EntityID struct {
	value  string
	quoted bool
}

func (id *EntityID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		id.value = s
		id.quoted = true
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("entity id must be a number or a string: %w", err)
	}
	// keep the raw text so 42 stays 42 on the way back out
	id.value = string(b)
	return nil
}

func (id EntityID) MarshalJSON() ([]byte, error) {
	if id.quoted {
		return json.Marshal(id.value)
	}
	if id.value == "" {
		return []byte("null"), nil
	}
	return []byte(id.value), nil
}

func (id EntityID) String() string { return id.value }

// isSet reports whether a room key can be derived from the id.
func (id *EntityID) isSet() bool {
	return id != nil && id.value != ""
}

// User carries the acting user's display name; everything else about the
// user lives in the REST backend.
type User struct {
	Username string `json:"username"`
}

// CommentEvent is the inbound payload for all comment:* mutations. Every
// field is optional on the wire.
type CommentEvent struct {
	SnippetID  *EntityID `json:"snippetId,omitempty"`
	QuestionID *EntityID `json:"questionId,omitempty"`
	ID         *EntityID `json:"id,omitempty"`
	Content    *string   `json:"content,omitempty"`
	User       *User     `json:"user,omitempty"`
}

// AnswerEvent is the inbound payload for all answer:* mutations.
type AnswerEvent struct {
	QuestionID *EntityID `json:"questionId,omitempty"`
	ID         *EntityID `json:"id,omitempty"`
	AnswerID   *EntityID `json:"answerId,omitempty"`
	Content    *string   `json:"content,omitempty"`
	User       *User     `json:"user,omitempty"`
	IsCorrect  *bool     `json:"isCorrect,omitempty"`
}

// Outbound payloads, one per broadcast kind. Identifying ids are echoed so
// clients can match the broadcast against their own view.

type CommentCreated struct {
	SnippetID  *EntityID `json:"snippetId,omitempty"`
	QuestionID *EntityID `json:"questionId,omitempty"`
	ID         *EntityID `json:"id,omitempty"`
	Content    *string   `json:"content,omitempty"`
	User       User      `json:"user"`
}

type CommentUpdated struct {
	SnippetID  *EntityID `json:"snippetId,omitempty"`
	QuestionID *EntityID `json:"questionId,omitempty"`
	ID         *EntityID `json:"id,omitempty"`
	Content    *string   `json:"content,omitempty"`
}

type CommentDeleted struct {
	SnippetID  *EntityID `json:"snippetId,omitempty"`
	QuestionID *EntityID `json:"questionId,omitempty"`
	ID         *EntityID `json:"id,omitempty"`
}

type AnswerCreated struct {
	QuestionID *EntityID `json:"questionId,omitempty"`
	ID         *EntityID `json:"id,omitempty"`
	Content    *string   `json:"content,omitempty"`
	User       User      `json:"user"`
	IsCorrect  bool      `json:"isCorrect"`
}

type AnswerUpdated struct {
	QuestionID *EntityID `json:"questionId,omitempty"`
	AnswerID   *EntityID `json:"answerId,omitempty"`
	Content    *string   `json:"content,omitempty"`
}

type AnswerDeleted struct {
	QuestionID *EntityID `json:"questionId,omitempty"`
	AnswerID   *EntityID `json:"answerId,omitempty"`
}

type AnswerStateChanged struct {
	QuestionID *EntityID `json:"questionId,omitempty"`
	AnswerID   *EntityID `json:"answerId,omitempty"`
	IsCorrect  *bool     `json:"isCorrect,omitempty"`
}

// ErrorPayload is sent back to the origin connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}
