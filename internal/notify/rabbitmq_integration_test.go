//go:build integration

package notify_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRabbitMQ starts a RabbitMQ container and returns its connection URL
func setupRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.12-management-alpine",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER": "guest",
			"RABBITMQ_DEFAULT_PASS": "guest",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Server startup complete"),
			wait.ForListeningPort("5672/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start RabbitMQ container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

type collectingSender struct {
	mu   sync.Mutex
	got  map[string][]string
	done chan struct{}
	want int
}

func (s *collectingSender) Send(_ context.Context, recipient string, job *notify.PushJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got[job.Kind] = append(s.got[job.Kind], recipient)
	s.want--
	if s.want == 0 {
		close(s.done)
	}
	return nil
}

func TestRabbitMQ_PushPipeline(t *testing.T) {
	url := setupRabbitMQ(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rmq, err := notify.NewRabbitMQWithRetry(ctx, url, 10)
	require.NoError(t, err)
	defer rmq.Close()
	assert.False(t, rmq.IsClosed())

	notifier := notify.NewNotifier(rmq)
	msg := &domain.Message{ID: "m1", GroupID: "g1", UserID: "u1", Text: "hello"}
	notifier.NotifyNewMessage(ctx, &domain.Group{ID: "g1", Name: "G"}, msg, &domain.UserInfo{ID: "u1", Name: "Ursula"}, []string{"u2", "u3"})
	notifier.NotifyRequestAccepted(ctx, &domain.Group{ID: "g1", Name: "G"}, "u4")
	notifier.Wait()

	msgs, err := rmq.ConsumeJobs()
	require.NoError(t, err)

	sender := &collectingSender{got: map[string][]string{}, done: make(chan struct{}), want: 3}
	go notify.NewDispatcher(sender).Run(ctx, msgs)

	select {
	case <-sender.done:
	case <-ctx.Done():
		t.Fatal("push jobs were not delivered")
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.ElementsMatch(t, []string{"u2", "u3"}, sender.got[notify.KindNewMessage])
	assert.Equal(t, []string{"u4"}, sender.got[notify.KindRequestAccepted])
}

func TestRabbitMQ_InvalidURL(t *testing.T) {
	_, err := notify.NewRabbitMQ("amqp://invalid:9999/")
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = notify.NewRabbitMQWithRetry(ctx, "amqp://invalid:9999/", 2)
	assert.Error(t, err)
}

func TestPushJob_WireFormat(t *testing.T) {
	job := notify.RequestAcceptedJob(&domain.Group{ID: "g1", Name: "G"}, "u1")
	data, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "request_accepted", decoded["kind"])
	assert.Equal(t, []any{"u1"}, decoded["recipients"])
}
