package main

import (
	"errors"
	"strings"
	"sync"
)

// IdentityService supplies the (username, skin) pair for a session start.
// Authentication itself happens upstream; the core only consumes the result.
type IdentityService interface {
	Resolve(username, skin string) (string, string, error)
}

const maxNameLen = 16

var errEmptyIdentity = errors.New("empty username")

// PassthroughIdentity trusts the values handed over by the upstream auth
// layer, normalizing the username and falling back to the default skin.
type PassthroughIdentity struct{}

func (PassthroughIdentity) Resolve(username, skin string) (string, string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", "", errEmptyIdentity
	}
	if len(username) > maxNameLen {
		username = username[:maxNameLen]
	}
	if _, ok := LoadoutCatalog[skin]; !ok {
		skin = DefaultSkin
	}
	return username, skin, nil
}

// RewardSink receives elimination credits. The core delivers each grant
// at-most-once; durability belongs to the economy service behind the sink.
type RewardSink interface {
	Grant(username string, amount int)
}

// RewardGrant is one pending credit.
type RewardGrant struct {
	Username string
	Amount   int
}

// AsyncRewarder forwards grants to a delivery function from a background
// goroutine so the simulation loop never blocks on the economy service.
// When the buffer is full the grant is dropped.
type AsyncRewarder struct {
	grants  chan RewardGrant
	stop    chan struct{}
	wg      sync.WaitGroup
	deliver func(RewardGrant) error
}

// NewAsyncRewarder starts the background forwarder. deliver may be nil, in
// which case grants are only logged.
func NewAsyncRewarder(deliver func(RewardGrant) error) *AsyncRewarder {
	a := &AsyncRewarder{
		grants:  make(chan RewardGrant, 256),
		stop:    make(chan struct{}),
		deliver: deliver,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Grant enqueues a credit without blocking.
func (a *AsyncRewarder) Grant(username string, amount int) {
	select {
	case a.grants <- RewardGrant{Username: username, Amount: amount}:
	default:
		Log.Warnw("reward buffer full, grant dropped", "user", username, "amount", amount)
	}
}

func (a *AsyncRewarder) run() {
	defer a.wg.Done()
	for {
		select {
		case g := <-a.grants:
			if a.deliver == nil {
				Log.Infow("kill reward", "user", g.Username, "amount", g.Amount)
				continue
			}
			if err := a.deliver(g); err != nil {
				// At-most-once: log and move on, no retry.
				Log.Errorw("reward delivery failed", "user", g.Username, "err", err)
			}
		case <-a.stop:
			return
		}
	}
}

// Close stops the forwarder. Pending grants in the buffer are abandoned.
func (a *AsyncRewarder) Close() {
	close(a.stop)
	a.wg.Wait()
}
