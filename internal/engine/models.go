package engine

import (
	"encoding/json"
	"time"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
)

// Event is one observed user action. Events are never modified.
type Event struct {
	// ID is optional; it keys effects that fire per event rather than per
	// threshold crossing.
	ID         string             `json:"eventId,omitempty"`
	CampaignID string             `json:"campaignId"`
	UserID     string             `json:"userId"`
	Action     catalog.ActionKind `json:"action"`
	Timestamp  time.Time          `json:"timestamp"`
	// Value is the optional valuation of the action, e.g. of a UGC item.
	Value *float64 `json:"value,omitempty"`
}

func (e Event) scope() counter.Scope {
	return counter.Scope{CampaignID: e.CampaignID, UserID: e.UserID}
}

// Normalize canonicalizes the action kind and gives an event without an id
// the one returned by newID.
func (r *Request) Normalize(newID func() string) {
	r.Action = catalog.ParseActionKind(string(r.Action))
	if r.ID == "" {
		r.ID = newID()
	}
}

// Request is an event plus the state the caller tracks outside the engine.
type Request struct {
	Event
	// RemainingBudget is the campaign budget left after this event, nil
	// when the caller does not track it.
	RemainingBudget *float64 `json:"remainingBudget,omitempty"`
}

type Result struct {
	Effects []Effect `json:"effects"`
	// Counters holds every counter the event touched, after update.
	Counters []counter.Entry `json:"counters"`
}

type EffectKind string

const (
	EffectRewardGrant EffectKind = "REWARD_GRANT"
	EffectAlert       EffectKind = "ALERT"
	EffectAutomation  EffectKind = "AUTOMATION"
)

// Payload is the closed set of effect bodies: RewardGrant, Alert and
// Automation.
type Payload interface {
	effectKind() EffectKind
}

type RewardGrant struct {
	CriterionID string             `json:"criterionId"`
	Reward      catalog.RewardKind `json:"rewardType"`
	Value       float64            `json:"rewardValue"`
}

type AlertType string

const (
	AlertActionThreshold AlertType = "ACTION_THRESHOLD"
	AlertLowBudget       AlertType = "LOW_BUDGET"
	AlertHighValueUGC    AlertType = "HIGH_VALUE_UGC"
)

type Alert struct {
	Type            AlertType `json:"type"`
	ThresholdID     string    `json:"thresholdId,omitempty"`
	Threshold       int64     `json:"threshold,omitempty"`
	RemainingBudget *float64  `json:"remainingBudget,omitempty"`
	Value           *float64  `json:"value,omitempty"`
}

type Automation struct {
	RuleID string         `json:"ruleId"`
	Name   string         `json:"name"`
	Action catalog.Action `json:"action"`
}

func (RewardGrant) effectKind() EffectKind { return EffectRewardGrant }
func (Alert) effectKind() EffectKind       { return EffectAlert }
func (Automation) effectKind() EffectKind  { return EffectAutomation }

// Effect describes a side effect for the dispatcher to carry out. Key is
// stable across retries and replays, so the dispatcher can realize each
// effect once.
type Effect struct {
	Key        string
	CampaignID string
	UserID     string
	// RuleID is empty for value-gated alerts.
	RuleID  string
	Count   int64
	EventID string
	Payload Payload
}

func (e Effect) Kind() EffectKind { return e.Payload.effectKind() }

func (e Effect) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key        string     `json:"key"`
		Kind       EffectKind `json:"kind"`
		CampaignID string     `json:"campaignId"`
		UserID     string     `json:"userId"`
		RuleID     string     `json:"ruleId,omitempty"`
		Count      int64      `json:"count,omitempty"`
		EventID    string     `json:"eventId,omitempty"`
		Payload    Payload    `json:"payload"`
	}{e.Key, e.Kind(), e.CampaignID, e.UserID, e.RuleID, e.Count, e.EventID, e.Payload})
}
