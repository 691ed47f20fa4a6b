package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"groupchat/internal/broadcast"
	"groupchat/internal/domain"
	"groupchat/internal/repository/memory"
	"groupchat/internal/service"
	"groupchat/internal/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayEnv struct {
	server   *httptest.Server
	groups   *service.GroupService
	verifier *testutil.MockTokenVerifier
}

func newGatewayEnv(t *testing.T, authTimeout time.Duration) *gatewayEnv {
	t.Helper()
	registry, _ := startRegistry(t, 0)

	store := memory.NewStore()
	fanout := broadcast.NewFanout(registry)
	groups := service.NewGroupService(store, fanout)
	messages := service.NewMessageService(store, store, fanout, nil)
	verifier := testutil.NewMockTokenVerifier()

	gateway := NewGateway(registry, verifier, groups, messages, GatewayConfig{AuthTimeout: authTimeout})
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		gateway.Serve(context.Background(), conn)
	}))
	t.Cleanup(server.Close)

	return &gatewayEnv{server: server, groups: groups, verifier: verifier}
}

func (e *gatewayEnv) group(t *testing.T, owner string, members ...string) *domain.Group {
	t.Helper()
	group, err := e.groups.CreateGroup(context.Background(), service.CreateGroupInput{
		Name:      "room-" + testutil.NewUserID(),
		Type:      domain.GroupOpen,
		Capacity:  10,
		OwnerID:   owner,
		MemberIDs: members,
	})
	require.NoError(t, err)
	return group
}

func (e *gatewayEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// connect dials and authenticates userID, optionally into groupID.
func (e *gatewayEnv) connect(t *testing.T, userID, groupID string) *websocket.Conn {
	t.Helper()
	token := "token-" + userID
	e.verifier.AddToken(token, userID)

	conn := e.dial(t)
	send(t, conn, map[string]string{"type": "auth", "token": token, "groupId": groupID})
	msg := readType(t, conn, TypeAuthSuccess)
	require.Equal(t, userID, msg["userId"])
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readType skips frames until one of the given type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for {
		msg := read(t, conn)
		if msg["type"] == typ {
			return msg
		}
		require.NotEqual(t, TypeError, msg["type"], "unexpected error frame: %v", msg)
	}
}

// expectFatal reads the error envelope and the close frame that follows.
func expectFatal(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	msg := read(t, conn)
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, code, msg["code"])

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	assert.ErrorAs(t, err, &closeErr)
}

func TestGateway_BroadcastsToGroupMembers(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	g := env.group(t, "u1", "u2")
	h := env.group(t, "u3")

	c1 := env.connect(t, "u1", g.ID)
	c2 := env.connect(t, "u2", g.ID)
	c3 := env.connect(t, "u3", h.ID)

	send(t, c1, map[string]string{"type": "message", "text": "hi"})

	for _, conn := range []*websocket.Conn{c1, c2} {
		msg := readType(t, conn, broadcast.TypeNewMessage)
		assert.Equal(t, "hi", msg["text"])
		assert.Equal(t, "u1", msg["user_id"])
		assert.Equal(t, g.ID, msg["group_id"])
	}

	require.NoError(t, c3.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := c3.ReadMessage()
	assert.Error(t, err, "connection in another group must not receive the message")
}

func TestGateway_JoinGroup(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	g := env.group(t, "u1")
	other := env.group(t, "u2")

	conn := env.connect(t, "u1", "")

	send(t, conn, map[string]string{"type": "message", "text": "too early"})
	msg := read(t, conn)
	assert.Equal(t, "invalid_state", msg["code"])

	send(t, conn, map[string]string{"type": "join_group", "groupId": other.ID})
	msg = read(t, conn)
	assert.Equal(t, TypeError, msg["type"])
	assert.Equal(t, "forbidden", msg["code"])

	send(t, conn, map[string]string{"type": "join_group", "groupId": g.ID})
	msg = readType(t, conn, TypeJoinedGroup)
	assert.Equal(t, g.ID, msg["groupId"])

	send(t, conn, map[string]string{"type": "ping"})
	readType(t, conn, TypePong)
}

func TestGateway_FatalErrors(t *testing.T) {
	env := newGatewayEnv(t, time.Second)
	g := env.group(t, "owner")

	t.Run("message before auth", func(t *testing.T) {
		conn := env.dial(t)
		send(t, conn, map[string]string{"type": "message", "text": "hi"})
		expectFatal(t, conn, "not_authenticated")
	})

	t.Run("malformed json", func(t *testing.T) {
		conn := env.dial(t)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
		expectFatal(t, conn, "validation_error")
	})

	t.Run("unknown type", func(t *testing.T) {
		conn := env.connect(t, "owner", g.ID)
		send(t, conn, map[string]string{"type": "dance"})
		expectFatal(t, conn, "unknown_message_type")
	})

	t.Run("invalid token", func(t *testing.T) {
		conn := env.dial(t)
		send(t, conn, map[string]string{"type": "auth", "token": "bogus"})
		expectFatal(t, conn, "unauthorized")
	})

	t.Run("auth into a foreign group", func(t *testing.T) {
		env.verifier.AddToken("token-stranger", "stranger")
		conn := env.dial(t)
		send(t, conn, map[string]string{"type": "auth", "token": "token-stranger", "groupId": g.ID})
		expectFatal(t, conn, "forbidden")
	})
}

func TestGateway_AuthTimeout(t *testing.T) {
	env := newGatewayEnv(t, 50*time.Millisecond)
	conn := env.dial(t)
	expectFatal(t, conn, "not_authenticated")
}
