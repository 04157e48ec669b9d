// Package counter defines per-(campaign, user, rule) action counters and the
// store contract the evaluator relies on.
//
// Stores must serialize read-modify-write cycles per (campaign, user) scope:
// two events for the same user and rule can never both read count N and both
// write N+1. A store that cannot guarantee this for an update returns a
// *ContentionError and commits nothing, so the caller can retry the event.
package counter

import (
	"context"
	"errors"
	"fmt"
)

type Key struct {
	CampaignID string `json:"campaignId"`
	UserID     string `json:"userId"`
	RuleID     string `json:"ruleId"`
}

func (k Key) String() string { return k.CampaignID + "/" + k.UserID + "/" + k.RuleID }

// Scope is the unit of atomic update: one user within one campaign.
type Scope struct {
	CampaignID string
	UserID     string
}

func (s Scope) Key(ruleID string) Key {
	return Key{CampaignID: s.CampaignID, UserID: s.UserID, RuleID: ruleID}
}

// Counter is the observed action count for one rule and user. LastFired is
// the count at which the rule last fired, nil if it never has.
type Counter struct {
	Count     int64  `json:"count"`
	LastFired *int64 `json:"lastFired,omitempty"`
}

func (c Counter) Fired() bool { return c.LastFired != nil }

type Entry struct {
	Key     Key     `json:"key"`
	Counter Counter `json:"counter"`
}

// Tx reads and writes counters of a single scope inside Store.Update.
type Tx interface {
	// Get returns the counter for ruleID; ok is false when it was never
	// written, in which case the zero Counter is returned.
	Get(ctx context.Context, ruleID string) (c Counter, ok bool, err error)
	Put(ctx context.Context, ruleID string, c Counter) error
}

type Store interface {
	// Update runs fn with exclusive access to scope. Writes made through the
	// Tx are committed together if and only if fn returns nil.
	Update(ctx context.Context, scope Scope, fn func(tx Tx) error) error
}

// Lister is implemented by stores that can enumerate a campaign's counters
// for reporting.
type Lister interface {
	List(ctx context.Context, campaignID string) ([]Entry, error)
}

var ErrNotMonotonic = errors.New("counter: update would move counter backwards")

// CheckAdvance rejects a write that lowers the count or the last-fired mark.
func CheckAdvance(prev, next Counter) error {
	if next.Count < prev.Count {
		return fmt.Errorf("%w: count %d -> %d", ErrNotMonotonic, prev.Count, next.Count)
	}
	if prev.LastFired != nil && (next.LastFired == nil || *next.LastFired < *prev.LastFired) {
		return fmt.Errorf("%w: last fired lowered from %d", ErrNotMonotonic, *prev.LastFired)
	}
	return nil
}

// ContentionError means the store could not give an update exclusive
// access. Nothing was committed; retrying the same event is safe.
type ContentionError struct {
	Scope   Scope
	Backend string
	Err     error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("counter: %s contention on %s/%s: %v", e.Backend, e.Scope.CampaignID, e.Scope.UserID, e.Err)
}

func (e *ContentionError) Unwrap() error { return e.Err }

func IsContention(err error) bool {
	var ce *ContentionError
	return errors.As(err, &ce)
}
