package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// AutomationKind names what an automation rule does when it fires.
type AutomationKind string

const (
	SendInAppMessage      AutomationKind = "SEND_IN_APP_MESSAGE"
	SendCoupon            AutomationKind = "SEND_COUPON"
	SendEmail             AutomationKind = "SEND_EMAIL"
	SendPermissionRequest AutomationKind = "SEND_PERMISSION_REQUEST"
	SendToken             AutomationKind = "SEND_TOKEN"
)

// legacy names still found in stored rules
var automationAliases = map[string]AutomationKind{
	"SEND_HCS_PERMISSION_REQUEST": SendPermissionRequest,
	"SEND_HCS_20_TOKEN":           SendToken,
}

// AutomationPayload is implemented only by the payload types in this file,
// one per AutomationKind.
type AutomationPayload interface {
	Kind() AutomationKind
	// missing returns the json names of required fields left empty.
	missing() []string
}

type InAppMessage struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type Coupon struct {
	Code string `json:"couponCode"`
}

type Email struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PermissionRequest asks a content owner, over the ledger bridge, for
// permission to reuse their content.
type PermissionRequest struct {
	TopicID string `json:"topicId"`
	Memo    string `json:"memo"`
}

// TokenTransfer sends Amount units of a ledger token.
type TokenTransfer struct {
	TokenID string `json:"tokenId"`
	Amount  int64  `json:"amount"`
}

func (InAppMessage) Kind() AutomationKind      { return SendInAppMessage }
func (Coupon) Kind() AutomationKind            { return SendCoupon }
func (Email) Kind() AutomationKind             { return SendEmail }
func (PermissionRequest) Kind() AutomationKind { return SendPermissionRequest }
func (TokenTransfer) Kind() AutomationKind     { return SendToken }

func (p InAppMessage) missing() []string { return empty("title", p.Title, "message", p.Message) }
func (p Coupon) missing() []string       { return empty("couponCode", p.Code) }
func (p Email) missing() []string        { return empty("subject", p.Subject, "body", p.Body) }

func (p PermissionRequest) missing() []string {
	return empty("topicId", p.TopicID, "memo", p.Memo)
}

func (p TokenTransfer) missing() []string {
	out := empty("tokenId", p.TokenID)
	if p.Amount < 1 {
		out = append(out, "amount")
	}
	return out
}

// empty takes name/value pairs and returns the names whose value is blank.
func empty(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}

// Action wraps exactly one automation payload; its kind is the payload's.
type Action struct {
	Payload AutomationPayload
}

func (a Action) Kind() AutomationKind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    AutomationKind    `json:"type"`
		Payload AutomationPayload `json:"payload"`
	}{a.Kind(), a.Payload})
}

func (a *Action) UnmarshalJSON(b []byte) error {
	var raw ActionSpec
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	act, err := DecodeAction(raw.Type, raw.Payload)
	if err != nil {
		return err
	}
	*a = act
	return nil
}

// DecodeAction turns a loosely typed {type, payload} pair into an Action.
// Payload keys that do not belong to the kind are rejected.
func DecodeAction(kind string, payload map[string]any) (Action, error) {
	k := AutomationKind(strings.ToUpper(strings.TrimSpace(kind)))
	if alias, ok := automationAliases[string(k)]; ok {
		k = alias
	}

	var p AutomationPayload
	var err error
	switch k {
	case SendInAppMessage:
		var v InAppMessage
		err = decodeStrict(payload, &v)
		p = v
	case SendCoupon:
		var v Coupon
		err = decodeStrict(payload, &v)
		p = v
	case SendEmail:
		var v Email
		err = decodeStrict(payload, &v)
		p = v
	case SendPermissionRequest:
		var v PermissionRequest
		err = decodeStrict(payload, &v)
		p = v
	case SendToken:
		var v TokenTransfer
		err = decodeStrict(payload, &v)
		p = v
	default:
		return Action{}, fmt.Errorf("unknown action type %q", kind)
	}
	if err != nil {
		return Action{}, fmt.Errorf("%s payload: %w", k, err)
	}
	return Action{Payload: p}, nil
}

func decodeStrict(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		TagName:     "json",
		Result:      out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}
