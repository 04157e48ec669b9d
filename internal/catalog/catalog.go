package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"campaign-action-engine/internal/journey"
)

// RuleCatalog is the validated, immutable rule set of one campaign.
type RuleCatalog struct {
	Campaign Campaign
	// Template is the campaign's playable journey, nil when it has none.
	Template *journey.Template

	rules    []Rule
	byAction map[ActionKind][]int
	byID     map[string]int
}

// NewRuleCatalog validates c and indexes its rules. Global automation rules
// are appended after the campaign's own rules.
func NewRuleCatalog(c Campaign, global []ActionRule) (*RuleCatalog, error) {
	if err := validateCampaign(c, global); err != nil {
		return nil, err
	}

	rc := &RuleCatalog{
		Campaign: c,
		byAction: map[ActionKind][]int{},
		byID:     map[string]int{},
	}
	add := func(r Rule) {
		rc.byID[r.ID] = len(rc.rules)
		rc.byAction[r.Action] = append(rc.byAction[r.Action], len(rc.rules))
		rc.rules = append(rc.rules, r)
	}
	for _, r := range c.RewardCriteria {
		add(Rule{ID: r.ID, Action: r.Action, Threshold: r.ActionCount, Repeatable: r.Repeatable, Source: r})
	}
	for _, t := range c.Alerts.ActionThresholds {
		add(Rule{ID: t.ID, Action: t.Action, Threshold: t.Threshold, Repeatable: t.Repeatable, Source: t})
	}
	for _, set := range [][]ActionRule{c.ActionRules, global} {
		for _, a := range set {
			add(Rule{ID: a.ID, Action: a.Trigger.Action, Threshold: a.Trigger.Count, Repeatable: a.Repeatable, Source: a})
		}
	}
	return rc, nil
}

// Rules returns every rule in declaration order.
func (rc *RuleCatalog) Rules() []Rule { return rc.rules }

// RulesFor returns the rules counting action, in declaration order.
func (rc *RuleCatalog) RulesFor(action ActionKind) []Rule {
	idx := rc.byAction[action]
	out := make([]Rule, 0, len(idx))
	for _, i := range idx {
		out = append(out, rc.rules[i])
	}
	return out
}

func (rc *RuleCatalog) Rule(id string) (Rule, bool) {
	i, ok := rc.byID[id]
	if !ok {
		return Rule{}, false
	}
	return rc.rules[i], true
}

func validateCampaign(c Campaign, global []ActionRule) error {
	var errs []error
	fail := func(ruleID, field, msg string) {
		errs = append(errs, &ValidationError{CampaignID: c.ID, RuleID: ruleID, Field: field, Message: msg})
	}

	if strings.TrimSpace(c.ID) == "" {
		fail("", "id", "required")
	}
	if c.Budget < 0 {
		fail("", "budget", "must be >= 0")
	}
	if c.Alerts.LowBudgetThreshold < 0 {
		fail("", "alerts.lowBudgetThreshold", "must be >= 0")
	}

	seen := map[string]bool{}
	checkID := func(id string) bool {
		if strings.TrimSpace(id) == "" {
			fail("", "rule.id", "required")
			return false
		}
		if seen[id] {
			fail(id, "id", "duplicate rule id")
			return false
		}
		seen[id] = true
		return true
	}

	for _, r := range c.RewardCriteria {
		if !checkID(r.ID) {
			continue
		}
		if !r.Action.Valid() {
			fail(r.ID, "action", fmt.Sprintf("unknown action kind %q", r.Action))
		}
		if !r.Reward.Valid() {
			fail(r.ID, "rewardType", fmt.Sprintf("unknown reward kind %q", r.Reward))
		}
		if r.Value < 0 {
			fail(r.ID, "rewardValue", "must be >= 0")
		}
		if r.ActionCount < 1 {
			fail(r.ID, "actionCount", "must be >= 1")
		}
	}
	for _, t := range c.Alerts.ActionThresholds {
		if !checkID(t.ID) {
			continue
		}
		if !t.Action.Valid() {
			fail(t.ID, "action", fmt.Sprintf("unknown action kind %q", t.Action))
		}
		if t.Threshold < 1 {
			fail(t.ID, "threshold", "must be >= 1")
		}
	}
	for _, set := range [][]ActionRule{c.ActionRules, global} {
		for _, a := range set {
			if !checkID(a.ID) {
				continue
			}
			if !a.Trigger.Action.Valid() {
				fail(a.ID, "trigger.type", fmt.Sprintf("unknown action kind %q", a.Trigger.Action))
			}
			if a.Trigger.Count < 1 {
				fail(a.ID, "trigger.count", "must be >= 1")
			}
			if a.Action.Payload == nil {
				fail(a.ID, "action", "missing payload")
				continue
			}
			for _, f := range a.Action.Payload.missing() {
				fail(a.ID, "action.payload."+f, fmt.Sprintf("required for %s", a.Action.Kind()))
			}
		}
	}
	return errors.Join(errs...)
}

// Registry is a loaded, fully validated configuration: every campaign's
// RuleCatalog plus the playable journey templates.
type Registry struct {
	campaigns map[string]*RuleCatalog
	order     []string
	templates map[string]journey.Template
	drafts    map[string]journey.Template
	warnings  []error
}

// Load validates doc and builds a Registry. Any invalid campaign, rule or
// non-draft template fails the whole load.
func Load(doc Document) (*Registry, error) {
	reg := &Registry{
		campaigns: map[string]*RuleCatalog{},
		templates: map[string]journey.Template{},
		drafts:    map[string]journey.Template{},
	}
	var errs []error

	for _, t := range doc.Templates {
		if _, dup := reg.templates[t.ID]; dup {
			errs = append(errs, &ValidationError{Field: "templates", Message: fmt.Sprintf("duplicate template id %q", t.ID)})
			continue
		}
		if _, dup := reg.drafts[t.ID]; dup {
			errs = append(errs, &ValidationError{Field: "templates", Message: fmt.Sprintf("duplicate template id %q", t.ID)})
			continue
		}
		if t.Draft {
			reg.drafts[t.ID] = t
			continue
		}
		if issues := t.Validate(); len(issues) > 0 {
			errs = append(errs, &journey.ValidationError{TemplateID: t.ID, Issues: issues})
			continue
		}
		reg.templates[t.ID] = t
	}

	global := make([]ActionRule, 0, len(doc.ActionRules))
	for _, spec := range doc.ActionRules {
		r, err := spec.build("")
		if err != nil {
			errs = append(errs, err)
			continue
		}
		global = append(global, r)
	}

	for _, spec := range doc.Campaigns {
		if _, dup := reg.campaigns[spec.ID]; dup {
			errs = append(errs, &ValidationError{CampaignID: spec.ID, Field: "id", Message: "duplicate campaign id"})
			continue
		}
		c, err := spec.build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rc, err := NewRuleCatalog(c, global)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if c.EventTemplateID != "" {
			if t, ok := reg.templates[c.EventTemplateID]; ok {
				rc.Template = &t
			} else {
				ref := &UnknownReferenceError{CampaignID: c.ID, Kind: ReferenceTemplate, ID: c.EventTemplateID}
				log.Warn().Err(ref).Str("campaign_id", c.ID).Msg("campaign loaded without journey")
				reg.warnings = append(reg.warnings, ref)
			}
		}
		reg.campaigns[c.ID] = rc
		reg.order = append(reg.order, c.ID)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Campaign(id string) (*RuleCatalog, bool) {
	rc, ok := r.campaigns[id]
	return rc, ok
}

// Campaigns returns the catalogs in document order.
func (r *Registry) Campaigns() []*RuleCatalog {
	out := make([]*RuleCatalog, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.campaigns[id])
	}
	return out
}

// Template returns a playable (complete, non-draft) template.
func (r *Registry) Template(id string) (journey.Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

// Draft returns a template saved as a draft; drafts are never played.
func (r *Registry) Draft(id string) (journey.Template, bool) {
	t, ok := r.drafts[id]
	return t, ok
}

// Warnings lists the non-fatal reference problems found while loading.
func (r *Registry) Warnings() []error { return r.warnings }

func (s CampaignSpec) build() (Campaign, error) {
	c := Campaign{
		ID:              strings.TrimSpace(s.ID),
		Name:            s.Name,
		Budget:          s.Budget,
		EventTemplateID: strings.TrimSpace(s.JourneyTemplateID),
		Alerts: AlertConfig{
			LowBudgetThreshold:   s.Alerts.LowBudgetThreshold,
			NotifyOnHighValueUGC: s.Alerts.NotifyOnHighValueUGC,
		},
	}
	for _, r := range s.RewardCriteria {
		repeatable := true
		if r.Repeatable != nil {
			repeatable = *r.Repeatable
		}
		c.RewardCriteria = append(c.RewardCriteria, RewardCriterion{
			ID:          r.ID,
			Action:      ParseActionKind(r.Action),
			Reward:      RewardKind(strings.ToUpper(strings.TrimSpace(r.RewardType))),
			Value:       r.RewardValue,
			ActionCount: defaultCount(r.ActionCount),
			Repeatable:  repeatable,
		})
	}
	for _, t := range s.Alerts.ActionThresholds {
		c.Alerts.ActionThresholds = append(c.Alerts.ActionThresholds, ActionThreshold{
			ID:         t.ID,
			Action:     ParseActionKind(t.Action),
			Threshold:  defaultCount(t.Threshold),
			Repeatable: t.Repeatable,
		})
	}
	var errs []error
	for _, spec := range s.ActionRules {
		r, err := spec.build(c.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c.ActionRules = append(c.ActionRules, r)
	}
	return c, errors.Join(errs...)
}

func (s ActionRuleSpec) build(campaignID string) (ActionRule, error) {
	act, err := DecodeAction(s.Action.Type, s.Action.Payload)
	if err != nil {
		return ActionRule{}, &ValidationError{CampaignID: campaignID, RuleID: s.ID, Field: "action", Message: err.Error()}
	}
	return ActionRule{
		ID:   s.ID,
		Name: s.Name,
		Trigger: Trigger{
			Action: ParseActionKind(s.Trigger.Type),
			Count:  defaultCount(s.Trigger.Count),
		},
		Action:     act,
		Repeatable: s.Repeatable,
	}, nil
}

// ParseActionKind canonicalizes an action name as written by clients or
// catalog authors ("wishlist_add " is WISHLIST_ADD). It does not check the
// kind is known.
func ParseActionKind(s string) ActionKind {
	return ActionKind(strings.ToUpper(strings.TrimSpace(s)))
}

// defaultCount maps an unset (zero) count to 1; negatives are left for
// validation to reject.
func defaultCount(n int64) int64 {
	if n == 0 {
		return 1
	}
	return n
}
