package main

import (
	"errors"
	"testing"
	"time"
)

func TestPassthroughIdentity(t *testing.T) {
	id := PassthroughIdentity{}

	username, skin, err := id.Resolve("  alice  ", "tank3")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if username != "alice" || skin != "tank3" {
		t.Errorf("got (%q, %q)", username, skin)
	}

	if _, _, err := id.Resolve("   ", "tank"); err == nil {
		t.Error("blank username should be rejected")
	}

	username, _, _ = id.Resolve("a-very-long-username-indeed", "tank")
	if len(username) != maxNameLen {
		t.Errorf("expected truncation to %d, got %q", maxNameLen, username)
	}

	_, skin, _ = id.Resolve("bob", "not-a-skin")
	if skin != DefaultSkin {
		t.Errorf("unknown skin should fall back, got %q", skin)
	}
}

func TestAsyncRewarderDelivers(t *testing.T) {
	delivered := make(chan RewardGrant, 1)
	a := NewAsyncRewarder(func(g RewardGrant) error {
		delivered <- g
		return nil
	})
	defer a.Close()

	a.Grant("alice", KillReward)

	select {
	case g := <-delivered:
		if g.Username != "alice" || g.Amount != KillReward {
			t.Errorf("unexpected grant %+v", g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("grant never delivered")
	}
}

func TestAsyncRewarderSurvivesDeliveryErrors(t *testing.T) {
	calls := make(chan struct{}, 2)
	a := NewAsyncRewarder(func(RewardGrant) error {
		calls <- struct{}{}
		return errors.New("economy service down")
	})
	defer a.Close()

	// At-most-once: a failed delivery is dropped, not retried, and the
	// forwarder keeps accepting grants.
	a.Grant("alice", 100)
	a.Grant("bob", 100)

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d never attempted", i)
		}
	}
}

func TestAsyncRewarderNilDeliverer(t *testing.T) {
	a := NewAsyncRewarder(nil)
	a.Grant("alice", 100)
	a.Close()
}
