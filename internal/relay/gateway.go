package relay

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Broadcast is the result of dispatching one inbound mutation event: the
// frame to deliver and the room to deliver it to. An empty Room means every
// connected client (the fallback when no identifying id was present).
type Broadcast struct {
	Room  string
	Event string
	Frame []byte
}

// Fixed error strings reported back to the origin connection.
const (
	msgRelayFailed       = "Relay failed"
	msgStateChangeFailed = "State change relay failed"
)

// Gateway translates one inbound "mutation happened" event into one outbound
// broadcast. It is stateless and never touches room membership; the caller
// hands the result to a Publisher.
type Gateway struct{}

func NewGateway() *Gateway { return &Gateway{} }

// Handles reports whether kind is a mutation event this gateway relays.
func (g *Gateway) Handles(kind string) bool {
	switch kind {
	case EventCommentCreate, EventCommentUpdate, EventCommentDelete,
		EventAnswerCreate, EventAnswerUpdate, EventAnswerDelete,
		EventAnswerStateChange:
		return true
	}
	return false
}

// Dispatch decodes the inbound payload, derives the target room and builds
// the outbound frame. It performs no I/O; on error the caller is expected to
// notify the origin connection via ErrorFrame.
func (g *Gateway) Dispatch(kind string, data []byte) (Broadcast, error) {
	switch kind {
	case EventCommentCreate, EventCommentUpdate, EventCommentDelete:
		return g.dispatchComment(kind, data)
	case EventAnswerCreate, EventAnswerUpdate, EventAnswerDelete, EventAnswerStateChange:
		return g.dispatchAnswer(kind, data)
	}
	return Broadcast{}, fmt.Errorf("unknown relay event %q", kind)
}

func (g *Gateway) dispatchComment(kind string, data []byte) (Broadcast, error) {
	var in CommentEvent
	if err := json.Unmarshal(data, &in); err != nil {
		return Broadcast{}, fmt.Errorf("decode %s: %w", kind, err)
	}

	room := commentRoom(in.SnippetID, in.QuestionID)

	var event string
	var payload interface{}
	switch kind {
	case EventCommentCreate:
		event = EventCommentCreated
		payload = CommentCreated{
			SnippetID:  in.SnippetID,
			QuestionID: in.QuestionID,
			ID:         in.ID,
			Content:    in.Content,
			User:       User{Username: displayName(in.User)},
		}
	case EventCommentUpdate:
		event = EventCommentUpdated
		payload = CommentUpdated{
			SnippetID:  in.SnippetID,
			QuestionID: in.QuestionID,
			ID:         in.ID,
			Content:    in.Content,
		}
	case EventCommentDelete:
		event = EventCommentDeleted
		payload = CommentDeleted{
			SnippetID:  in.SnippetID,
			QuestionID: in.QuestionID,
			ID:         in.ID,
		}
	}

	frame, err := marshalFrame(event, payload)
	if err != nil {
		return Broadcast{}, err
	}
	return Broadcast{Room: room, Event: event, Frame: frame}, nil
}

func (g *Gateway) dispatchAnswer(kind string, data []byte) (Broadcast, error) {
	var in AnswerEvent
	if err := json.Unmarshal(data, &in); err != nil {
		return Broadcast{}, fmt.Errorf("decode %s: %w", kind, err)
	}

	room := answerRoom(in.QuestionID)

	var event string
	var payload interface{}
	switch kind {
	case EventAnswerCreate:
		event = EventAnswerCreated
		isCorrect := false
		if in.IsCorrect != nil {
			isCorrect = *in.IsCorrect
		}
		payload = AnswerCreated{
			QuestionID: in.QuestionID,
			ID:         in.ID,
			Content:    in.Content,
			User:       User{Username: displayName(in.User)},
			IsCorrect:  isCorrect,
		}
	case EventAnswerUpdate:
		event = EventAnswerUpdated
		payload = AnswerUpdated{
			QuestionID: in.QuestionID,
			AnswerID:   in.AnswerID,
			Content:    in.Content,
		}
	case EventAnswerDelete:
		event = EventAnswerDeleted
		payload = AnswerDeleted{
			QuestionID: in.QuestionID,
			AnswerID:   in.AnswerID,
		}
	case EventAnswerStateChange:
		event = EventAnswerStateChanged
		payload = AnswerStateChanged{
			QuestionID: in.QuestionID,
			AnswerID:   in.AnswerID,
			IsCorrect:  in.IsCorrect,
		}
	}

	frame, err := marshalFrame(event, payload)
	if err != nil {
		return Broadcast{}, err
	}
	return Broadcast{Room: room, Event: event, Frame: frame}, nil
}

// commentRoom prefers the snippet room; comments can hang off either entity.
func commentRoom(snippetID, questionID *EntityID) string {
	if snippetID.isSet() {
		return "snippet:" + snippetID.String()
	}
	if questionID.isSet() {
		return "question:" + questionID.String()
	}
	return ""
}

func answerRoom(questionID *EntityID) string {
	if questionID.isSet() {
		return "question:" + questionID.String()
	}
	return ""
}

func displayName(u *User) string {
	if u == nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}

func marshalFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Type: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return frame, nil
}

// ErrorEvent maps an inbound kind to the error event emitted back to the
// origin connection.
func ErrorEvent(kind string) string {
	if strings.HasPrefix(kind, "comment:") {
		return EventCommentError
	}
	return EventAnswerError
}

// ErrorFrame builds the point-to-point error frame for a failed relay of the
// given inbound kind.
func ErrorFrame(kind string) ([]byte, error) {
	message := msgRelayFailed
	if kind == EventAnswerStateChange {
		message = msgStateChangeFailed
	}
	return marshalFrame(ErrorEvent(kind), ErrorPayload{Message: message})
}
