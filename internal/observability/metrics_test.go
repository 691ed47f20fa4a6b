package observability

import (
	"database/sql"
	"errors"
	"testing"

	"groupchat/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMembershipOperations(t *testing.T) {
	before := testutil.ToFloat64(MembershipOperations.WithLabelValues("join", "group_full"))

	MembershipOperations.WithLabelValues("join", Outcome(domain.ErrGroupFull)).Inc()

	after := testutil.ToFloat64(MembershipOperations.WithLabelValues("join", "group_full"))
	assert.Equal(t, before+1, after)
}

func TestWebSocketGauges(t *testing.T) {
	start := testutil.ToFloat64(WebSocketConnectionsActive)

	WebSocketConnectionsActive.Inc()
	WebSocketConnectionsActive.Inc()
	WebSocketConnectionsActive.Dec()

	assert.Equal(t, start+1, testutil.ToFloat64(WebSocketConnectionsActive))
	WebSocketConnectionsActive.Dec()
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "forbidden", Outcome(domain.ErrForbidden))
	assert.Equal(t, domain.CodeInternal, Outcome(errors.New("boom")))
}

func TestHTTPRequestDuration_AcceptsLabels(t *testing.T) {
	assert.NotPanics(t, func() {
		HTTPRequestDuration.WithLabelValues("GET", "/api/v1/groups/{id}", "200").Observe(0.05)
		HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/groups/{id}", "200").Inc()
	})
}

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{OpenConnections: 7, InUse: 3, Idle: 4})

	assert.Equal(t, 7.0, testutil.ToFloat64(DBConnectionsOpen))
	assert.Equal(t, 3.0, testutil.ToFloat64(DBConnectionsInUse))
	assert.Equal(t, 4.0, testutil.ToFloat64(DBConnectionsIdle))
}
