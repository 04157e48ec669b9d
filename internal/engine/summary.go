package engine

import (
	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
)

type RuleSummary struct {
	RuleID     string             `json:"ruleId"`
	Class      catalog.RuleClass  `json:"class"`
	Action     catalog.ActionKind `json:"action"`
	Threshold  int64              `json:"threshold"`
	Users      int                `json:"users"`
	TotalCount int64              `json:"totalCount"`
	// FiredUsers is the number of users the rule has fired for at least once.
	FiredUsers int `json:"firedUsers"`
}

type Summary struct {
	CampaignID string        `json:"campaignId"`
	Rules      []RuleSummary `json:"rules"`
	// Orphaned counts stored counters whose rule left the catalog.
	Orphaned int `json:"orphaned,omitempty"`
}

// Summarize tallies a campaign's stored counters per rule, in catalog
// order. Counters of rules the catalog no longer has are logged, reported
// and left out.
func Summarize(cat *catalog.RuleCatalog, entries []counter.Entry) (Summary, []error) {
	s := Summary{CampaignID: cat.Campaign.ID}
	index := map[string]int{}
	for _, r := range cat.Rules() {
		index[r.ID] = len(s.Rules)
		s.Rules = append(s.Rules, RuleSummary{RuleID: r.ID, Class: r.Class(), Action: r.Action, Threshold: r.Threshold})
	}

	var errs []error
	for _, e := range entries {
		if e.Key.CampaignID != cat.Campaign.ID {
			continue
		}
		i, ok := index[e.Key.RuleID]
		if !ok {
			ref := &catalog.UnknownReferenceError{CampaignID: cat.Campaign.ID, Kind: catalog.ReferenceRule, ID: e.Key.RuleID}
			log.Warn().Err(ref).Str("user_id", e.Key.UserID).Msg("counter skipped")
			errs = append(errs, ref)
			continue
		}
		rs := &s.Rules[i]
		rs.Users++
		rs.TotalCount += e.Counter.Count
		if e.Counter.Fired() {
			rs.FiredUsers++
		}
	}
	return s, errs
}
