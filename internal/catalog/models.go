package catalog

// ActionKind is a tracked category of user behavior.
type ActionKind string

const (
	UGCCreation ActionKind = "UGC_CREATION"
	WishlistAdd ActionKind = "WISHLIST_ADD"
	Referral    ActionKind = "REFERRAL"
	SocialShare ActionKind = "SOCIAL_SHARE"
	Feedback    ActionKind = "FEEDBACK"
)

func (a ActionKind) Valid() bool {
	switch a {
	case UGCCreation, WishlistAdd, Referral, SocialShare, Feedback:
		return true
	}
	return false
}

type RewardKind string

const (
	RewardPercentage  RewardKind = "PERCENTAGE"
	RewardFixedAmount RewardKind = "FIXED_AMOUNT"
	RewardFreeItem    RewardKind = "FREE_ITEM"
	RewardPoints      RewardKind = "POINTS"
)

func (r RewardKind) Valid() bool {
	switch r {
	case RewardPercentage, RewardFixedAmount, RewardFreeItem, RewardPoints:
		return true
	}
	return false
}

// Campaign is the validated, read-only configuration of one campaign.
type Campaign struct {
	ID              string
	Name            string
	Budget          float64
	RewardCriteria  []RewardCriterion
	Alerts          AlertConfig
	EventTemplateID string
	ActionRules     []ActionRule
}

// RewardCriterion grants a reward every ActionCount matching actions
// (or once, when not repeatable).
type RewardCriterion struct {
	ID          string
	Action      ActionKind
	Reward      RewardKind
	Value       float64
	ActionCount int64
	Repeatable  bool
}

type AlertConfig struct {
	LowBudgetThreshold   float64
	NotifyOnHighValueUGC bool
	ActionThresholds     []ActionThreshold
}

type ActionThreshold struct {
	ID         string
	Action     ActionKind
	Threshold  int64
	Repeatable bool
}

// Trigger fires an automation after Count actions of kind Action.
type Trigger struct {
	Action ActionKind
	Count  int64
}

// ActionRule is a named automation: when Trigger is met, Action is emitted.
type ActionRule struct {
	ID         string
	Name       string
	Trigger    Trigger
	Action     Action
	Repeatable bool
}

// RuleClass tells which catalog section a Rule came from.
type RuleClass string

const (
	ClassReward     RuleClass = "REWARD"
	ClassThreshold  RuleClass = "ALERT_THRESHOLD"
	ClassAutomation RuleClass = "AUTOMATION"
)

// RuleSource is the closed set of catalog entries a Rule can be built from:
// RewardCriterion, ActionThreshold and ActionRule.
type RuleSource interface {
	ruleClass() RuleClass
}

func (RewardCriterion) ruleClass() RuleClass { return ClassReward }
func (ActionThreshold) ruleClass() RuleClass { return ClassThreshold }
func (ActionRule) ruleClass() RuleClass      { return ClassAutomation }

// Rule is the count-gated view of a catalog entry the evaluator works on.
type Rule struct {
	ID         string
	Action     ActionKind
	Threshold  int64
	Repeatable bool
	Source     RuleSource
}

func (r Rule) Class() RuleClass { return r.Source.ruleClass() }
