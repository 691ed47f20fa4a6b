package domain

import "context"

// Repos groups the repositories that share one transaction.
type Repos interface {
	Groups() GroupRepository
	Invites() InviteRepository
	JoinRequests() JoinRequestRepository
	Messages() MessageRepository
}

// Store is the transactional storage contract. The Repos embedded in Store
// run outside any transaction; WithTx hands fn repositories bound to a
// single transaction that is committed when fn returns nil and rolled back
// otherwise.
type Store interface {
	Repos
	WithTx(ctx context.Context, fn func(Repos) error) error
}
