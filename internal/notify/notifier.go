package notify

import (
	"context"
	"sync"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/observability"
)

const publishTimeout = 5 * time.Second

// JobPublisher hands a job to the broker.
type JobPublisher interface {
	PublishJob(ctx context.Context, job *PushJob) error
}

// Notifier implements service.Notifier. Jobs are published in the
// background; failures are logged and counted, never returned.
type Notifier struct {
	publisher JobPublisher
	wg        sync.WaitGroup
}

func NewNotifier(publisher JobPublisher) *Notifier {
	return &Notifier{publisher: publisher}
}

func (n *Notifier) NotifyNewMessage(ctx context.Context, group *domain.Group, msg *domain.Message, sender *domain.UserInfo, recipients []string) {
	if len(recipients) == 0 {
		return
	}
	n.publish(ctx, NewMessageJob(group, msg, sender, recipients))
}

func (n *Notifier) NotifyGroupInvite(ctx context.Context, invite *domain.Invite, group *domain.Group) {
	n.publish(ctx, GroupInviteJob(invite, group))
}

func (n *Notifier) NotifyRequestAccepted(ctx context.Context, group *domain.Group, userID string) {
	n.publish(ctx, RequestAcceptedJob(group, userID))
}

func (n *Notifier) publish(ctx context.Context, job *PushJob) {
	// the request context ends with the response; keep its values only
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		err := n.publisher.PublishJob(pubCtx, job)
		observability.PushJobsPublished.WithLabelValues(job.Kind, observability.Outcome(err)).Inc()
		if err != nil {
			observability.FromContext(ctx).Error("failed to publish push job",
				"kind", job.Kind,
				"recipients", len(job.Recipients),
				"error", err)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
