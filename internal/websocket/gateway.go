package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"groupchat/internal/auth"
	"groupchat/internal/domain"
	"groupchat/internal/observability"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const requestTimeout = 5 * time.Second

// MembershipChecker answers whether a user belongs to a group.
type MembershipChecker interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
}

// MessageSender persists and fans out a chat message.
type MessageSender interface {
	Send(ctx context.Context, groupID, userID, text string) (*domain.Message, error)
}

// GatewayConfig tunes session handling.
type GatewayConfig struct {
	AuthTimeout time.Duration
	// MessageRate and MessageBurst bound inbound frames per connection.
	MessageRate  rate.Limit
	MessageBurst int
}

// Gateway runs the session protocol for each accepted socket.
type Gateway struct {
	registry *Registry
	verifier auth.TokenVerifier
	members  MembershipChecker
	messages MessageSender
	cfg      GatewayConfig
}

func NewGateway(registry *Registry, verifier auth.TokenVerifier, members MembershipChecker, messages MessageSender, cfg GatewayConfig) *Gateway {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = rate.Limit(10)
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 20
	}
	return &Gateway{
		registry: registry,
		verifier: verifier,
		members:  members,
		messages: messages,
		cfg:      cfg,
	}
}

// Serve runs a session on socket until the peer disconnects, the session
// fails or the registry shuts down. It blocks.
func (g *Gateway) Serve(ctx context.Context, socket Socket) {
	conn := newConn(socket)
	if err := g.registry.Register(conn); err != nil {
		_ = socket.Close()
		return
	}
	defer g.registry.Unregister(conn)
	defer conn.Close()

	go conn.writePump()

	timer := time.AfterFunc(g.cfg.AuthTimeout, func() {
		if conn.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed)) {
			slog.Info("authentication timed out", "conn_id", conn.id)
			observability.WebSocketConnectionsDropped.WithLabelValues("auth_timeout").Inc()
			conn.fail(domain.NewError(domain.KindNotAuthenticated, "authentication timed out"), websocket.ClosePolicyViolation)
		}
	})
	defer timer.Stop()

	socket.SetReadLimit(maxMessageSize)
	socket.SetPongHandler(func(string) error {
		conn.alive.Store(true)
		return nil
	})

	s := &session{gateway: g, conn: conn, limiter: rate.NewLimiter(g.cfg.MessageRate, g.cfg.MessageBurst)}
	s.readLoop(observability.WithConnID(ctx, conn.id))
}

type session struct {
	gateway *Gateway
	conn    *Conn
	limiter *rate.Limiter
}

// fatalError ends the session after the error envelope is written.
type fatalError struct {
	err  error
	code int
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error, code int) error {
	return &fatalError{err: err, code: code}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		_, data, err := s.conn.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) && !s.conn.isClosed() {
				observability.FromContext(ctx).Warn("websocket read error", "error", err)
			}
			return
		}
		s.conn.alive.Store(true)

		if !s.limiter.Allow() {
			s.conn.reply(errorMessage(domain.NewError(domain.KindUnavailable, "too many messages, slow down")))
			continue
		}

		if err := s.handle(ctx, data); err != nil {
			var fe *fatalError
			if errors.As(err, &fe) {
				observability.FromContext(ctx).Info("closing session", "code", domain.CodeOf(fe.err), "reason", domain.PublicMessage(fe.err))
				observability.WebSocketConnectionsDropped.WithLabelValues(domain.CodeOf(fe.err)).Inc()
				s.conn.fail(fe.err, fe.code)
				return
			}
			s.conn.reply(errorMessage(err))
		}
	}
}

func (s *session) handle(ctx context.Context, data []byte) error {
	msg, err := ParseClientMessage(data)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknownMessageType {
			return fatal(err, websocket.CloseUnsupportedData)
		}
		return fatal(err, websocket.CloseInvalidFramePayloadData)
	}

	if am, ok := msg.(AuthMessage); ok {
		return s.authenticate(ctx, am)
	}
	if !s.conn.authenticated() {
		return fatal(domain.NewError(domain.KindNotAuthenticated, "authenticate first"), websocket.ClosePolicyViolation)
	}

	ctx = observability.WithUserID(ctx, s.conn.UserID())
	switch m := msg.(type) {
	case JoinGroupMessage:
		return s.joinGroup(ctx, m.GroupID)
	case ChatMessage:
		return s.sendMessage(ctx, m.Text)
	case PingMessage:
		s.conn.reply(ServerMessage{Type: TypePong})
		return nil
	default:
		return fatal(domain.NewError(domain.KindUnknownMessageType, "unsupported message"), websocket.CloseUnsupportedData)
	}
}

func (s *session) authenticate(ctx context.Context, m AuthMessage) error {
	if s.conn.State() != StateConnecting {
		return domain.NewError(domain.KindInvalidState, "already authenticated")
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	userID, err := s.gateway.verifier.Verify(reqCtx, m.Token)
	if err != nil {
		if domain.KindOf(err) == "" {
			err = domain.WrapError(domain.KindAuth, err, "authentication failed")
		}
		return fatal(err, websocket.ClosePolicyViolation)
	}

	if m.GroupID != "" {
		if err := s.checkMember(reqCtx, m.GroupID, userID); err != nil {
			return fatal(err, websocket.ClosePolicyViolation)
		}
	}

	if !s.conn.authenticate(userID) {
		// the auth timer fired first
		return nil
	}
	ctx = observability.WithUserID(ctx, userID)

	if m.GroupID != "" {
		if err := s.gateway.registry.JoinGroup(s.conn, m.GroupID); err != nil {
			return fatal(err, websocket.CloseGoingAway)
		}
	}

	observability.FromContext(ctx).Info("connection authenticated", "group_id", m.GroupID)
	s.conn.reply(ServerMessage{Type: TypeAuthSuccess, UserID: userID, GroupID: m.GroupID})
	return nil
}

func (s *session) joinGroup(ctx context.Context, groupID string) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := s.checkMember(reqCtx, groupID, s.conn.UserID()); err != nil {
		return err
	}
	if err := s.gateway.registry.JoinGroup(s.conn, groupID); err != nil {
		return err
	}
	s.conn.reply(ServerMessage{Type: TypeJoinedGroup, GroupID: groupID})
	return nil
}

func (s *session) sendMessage(ctx context.Context, text string) error {
	groupID := s.conn.GroupID()
	if groupID == "" {
		return domain.NewError(domain.KindInvalidState, "join a group before sending messages")
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if _, err := s.gateway.messages.Send(reqCtx, groupID, s.conn.UserID(), text); err != nil {
		if domain.KindOf(err) == "" {
			observability.FromContext(ctx).Error("failed to send message", "group_id", groupID, "error", err)
		}
		return err
	}
	return nil
}

func (s *session) checkMember(ctx context.Context, groupID, userID string) error {
	ok, err := s.gateway.members.IsMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.KindForbidden, "not a member of group %s", groupID)
	}
	return nil
}
