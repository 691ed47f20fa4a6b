package websocket

import (
	"encoding/json"
	"strings"

	"groupchat/internal/domain"
)

// Client message types.
const (
	TypeAuth      = "auth"
	TypeJoinGroup = "join_group"
	TypeMessage   = "message"
	TypePing      = "ping"
)

// Server message types.
const (
	TypeAuthSuccess = "auth_success"
	TypeJoinedGroup = "joined_group"
	TypePong        = "pong"
	TypeError       = "error"
)

// ClientMessage is one of AuthMessage, JoinGroupMessage, ChatMessage or
// PingMessage.
type ClientMessage interface {
	clientMessage()
}

type AuthMessage struct {
	Token   string
	GroupID string
}

type JoinGroupMessage struct {
	GroupID string
}

type ChatMessage struct {
	Text string
}

type PingMessage struct{}

func (AuthMessage) clientMessage()      {}
func (JoinGroupMessage) clientMessage() {}
func (ChatMessage) clientMessage()      {}
func (PingMessage) clientMessage()      {}

type rawClientMessage struct {
	Type    string `json:"type"`
	Token   string `json:"token"`
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

// ParseClientMessage decodes a client frame. Malformed JSON is a validation
// error, an unrecognized type is an UnknownMessageType error.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var raw rawClientMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.WrapError(domain.KindValidation, err, "malformed message")
	}

	switch raw.Type {
	case TypeAuth:
		token := strings.TrimSpace(raw.Token)
		if token == "" {
			return nil, domain.NewError(domain.KindAuth, "token is required")
		}
		return AuthMessage{Token: token, GroupID: strings.TrimSpace(raw.GroupID)}, nil
	case TypeJoinGroup:
		groupID := strings.TrimSpace(raw.GroupID)
		if groupID == "" {
			return nil, domain.NewError(domain.KindValidation, "groupId is required")
		}
		return JoinGroupMessage{GroupID: groupID}, nil
	case TypeMessage:
		return ChatMessage{Text: raw.Text}, nil
	case TypePing:
		return PingMessage{}, nil
	case "":
		return nil, domain.NewError(domain.KindValidation, "message type is required")
	default:
		return nil, domain.NewError(domain.KindUnknownMessageType, "unknown message type %q", raw.Type)
	}
}

// ServerMessage is a reply addressed to a single connection.
type ServerMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func errorMessage(err error) ServerMessage {
	return ServerMessage{
		Type:    TypeError,
		Code:    domain.CodeOf(err),
		Message: domain.PublicMessage(err),
	}
}
