// Package websocket tracks live client connections, groups them by the group
// they joined and fans payloads out to them.
package websocket

import (
	"context"
	"log/slog"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

type move struct {
	conn    *Conn
	groupID string
	done    chan struct{}
}

// eviction detaches connections from a group. An empty userID detaches
// every connection in the group.
type eviction struct {
	groupID string
	userID  string
	result  chan int
}

type delivery struct {
	groupID string
	payload []byte
	result  chan int
}

// Registry owns the group to connection index. All mutations and deliveries
// run on the Run goroutine, so a delivery never observes a connection in two
// groups or in none while it is being moved.
type Registry struct {
	conns  map[*Conn]struct{}
	groups map[string]map[*Conn]struct{}

	register   chan *Conn
	unregister chan *Conn
	moves      chan move
	deliveries chan delivery
	evictions  chan eviction

	heartbeat time.Duration
	done      chan struct{}
}

// NewRegistry creates a registry. A zero heartbeat disables the liveness
// sweep.
func NewRegistry(heartbeat time.Duration) *Registry {
	return &Registry{
		conns:      make(map[*Conn]struct{}),
		groups:     make(map[string]map[*Conn]struct{}),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		moves:      make(chan move),
		deliveries: make(chan delivery),
		evictions:  make(chan eviction),
		heartbeat:  heartbeat,
		done:       make(chan struct{}),
	}
}

// Run starts the registry's main loop
func (r *Registry) Run(ctx context.Context) error {
	defer r.shutdown()

	var tick <-chan time.Time
	if r.heartbeat > 0 {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("registry shutting down gracefully")
			return ctx.Err()

		case c := <-r.register:
			r.conns[c] = struct{}{}
			observability.WebSocketConnectionsActive.Inc()
			slog.Debug("connection registered", "conn_id", c.id)

		case c := <-r.unregister:
			if r.remove(c) {
				slog.Debug("connection unregistered", "conn_id", c.id, "user_id", c.UserID())
			}

		case m := <-r.moves:
			r.move(m.conn, m.groupID)
			close(m.done)

		case d := <-r.deliveries:
			d.result <- r.deliver(d.groupID, d.payload)

		case e := <-r.evictions:
			e.result <- r.evict(e.groupID, e.userID)

		case <-tick:
			r.sweep()
		}
	}
}

// Register starts tracking c. It fails once the registry has stopped.
func (r *Registry) Register(c *Conn) error {
	select {
	case r.register <- c:
		return nil
	case <-r.done:
		return domain.NewError(domain.KindUnavailable, "server is shutting down")
	}
}

// Unregister stops tracking c. Calling it more than once is harmless.
func (r *Registry) Unregister(c *Conn) {
	select {
	case r.unregister <- c:
	case <-r.done:
	}
}

// JoinGroup moves an authenticated connection into groupID, leaving any
// group it was in before. Membership must be checked by the caller.
func (r *Registry) JoinGroup(c *Conn, groupID string) error {
	if !c.authenticated() {
		return domain.NewError(domain.KindNotAuthenticated, "authenticate before joining a group")
	}

	m := move{conn: c, groupID: groupID, done: make(chan struct{})}
	select {
	case r.moves <- m:
	case <-r.done:
		return domain.NewError(domain.KindUnavailable, "server is shutting down")
	}
	<-m.done
	return nil
}

// Deliver enqueues payload on every connection joined to groupID and returns
// how many accepted it. It never blocks on a slow connection.
func (r *Registry) Deliver(groupID string, payload []byte) int {
	d := delivery{groupID: groupID, payload: payload, result: make(chan int, 1)}
	select {
	case r.deliveries <- d:
	case <-r.done:
		return 0
	}
	return <-d.result
}

// Evict detaches userID's connections from groupID, typically after the user
// lost membership. The connections stay open and authenticated, and can join
// another group. It returns how many connections were detached.
func (r *Registry) Evict(groupID, userID string) int {
	if userID == "" {
		return 0
	}
	return r.requestEviction(groupID, userID)
}

// EvictGroup detaches every connection from groupID.
func (r *Registry) EvictGroup(groupID string) int {
	return r.requestEviction(groupID, "")
}

func (r *Registry) requestEviction(groupID, userID string) int {
	e := eviction{groupID: groupID, userID: userID, result: make(chan int, 1)}
	select {
	case r.evictions <- e:
	case <-r.done:
		return 0
	}
	return <-e.result
}

func (r *Registry) evict(groupID, userID string) int {
	evicted := 0
	for c := range r.groups[groupID] {
		if userID != "" && c.UserID() != userID {
			continue
		}
		r.detach(c)
		c.clearGroup()
		evicted++
	}
	if evicted > 0 {
		slog.Debug("connections evicted", "group_id", groupID, "user_id", userID, "count", evicted)
	}
	return evicted
}

func (r *Registry) deliver(groupID string, payload []byte) int {
	delivered := 0
	for c := range r.groups[groupID] {
		if c.isClosed() {
			r.remove(c)
			continue
		}
		if !c.enqueue(payload) {
			slog.Warn("dropping slow connection", "conn_id", c.id, "user_id", c.UserID(), "group_id", groupID)
			r.drop(c, "slow_consumer")
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) move(c *Conn, groupID string) {
	if _, ok := r.conns[c]; !ok {
		return
	}
	r.detach(c)

	set, ok := r.groups[groupID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.groups[groupID] = set
		observability.WebSocketGroupsActive.Inc()
	}
	set[c] = struct{}{}
	c.setGroup(groupID)
}

// detach removes c from its current group set and prunes the set if empty.
func (r *Registry) detach(c *Conn) {
	groupID := c.GroupID()
	set, ok := r.groups[groupID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.groups, groupID)
		observability.WebSocketGroupsActive.Dec()
	}
}

// remove forgets c and reports whether it was tracked.
func (r *Registry) remove(c *Conn) bool {
	if _, ok := r.conns[c]; !ok {
		return false
	}
	r.detach(c)
	delete(r.conns, c)
	observability.WebSocketConnectionsActive.Dec()
	return true
}

func (r *Registry) drop(c *Conn, reason string) {
	r.remove(c)
	c.Close()
	observability.WebSocketConnectionsDropped.WithLabelValues(reason).Inc()
}

// sweep closes connections that did not answer the previous probe and probes
// the rest.
func (r *Registry) sweep() {
	for c := range r.conns {
		if !c.alive.Swap(false) {
			slog.Info("closing unresponsive connection", "conn_id", c.id, "user_id", c.UserID())
			r.drop(c, "heartbeat")
			continue
		}
		c.ping()
	}
}

// shutdown closes every connection
func (r *Registry) shutdown() {
	close(r.done)

	for c := range r.conns {
		c.Close()
		r.remove(c)
	}
	slog.Info("registry shutdown complete")
}
