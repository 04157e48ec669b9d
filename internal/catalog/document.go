package catalog

import "campaign-action-engine/internal/journey"

// Document is the stored, loosely typed form of the whole configuration, as
// it comes from a YAML file or from the database. Load validates it into a
// Registry.
type Document struct {
	Campaigns   []CampaignSpec     `yaml:"campaigns" json:"campaigns"`
	ActionRules []ActionRuleSpec   `yaml:"actionRules" json:"actionRules"`
	Templates   []journey.Template `yaml:"templates" json:"templates"`
}

type CampaignSpec struct {
	ID                string                `yaml:"id" json:"id"`
	Name              string                `yaml:"name" json:"name"`
	Budget            float64               `yaml:"budget" json:"budget"`
	JourneyTemplateID string                `yaml:"journeyTemplateId" json:"journeyTemplateId"`
	RewardCriteria    []RewardCriterionSpec `yaml:"rewardCriteria" json:"rewardCriteria"`
	Alerts            AlertConfigSpec       `yaml:"alerts" json:"alerts"`
	ActionRules       []ActionRuleSpec      `yaml:"actionRules" json:"actionRules"`
}

type RewardCriterionSpec struct {
	ID          string  `yaml:"id" json:"id"`
	Action      string  `yaml:"action" json:"action"`
	RewardType  string  `yaml:"rewardType" json:"rewardType"`
	RewardValue float64 `yaml:"rewardValue" json:"rewardValue"`
	ActionCount int64   `yaml:"actionCount" json:"actionCount"`
	// nil means repeatable
	Repeatable *bool `yaml:"repeatable" json:"repeatable"`
}

type AlertConfigSpec struct {
	LowBudgetThreshold   float64               `yaml:"lowBudgetThreshold" json:"lowBudgetThreshold"`
	NotifyOnHighValueUGC bool                  `yaml:"notifyOnHighValueUGC" json:"notifyOnHighValueUGC"`
	ActionThresholds     []ActionThresholdSpec `yaml:"actionThresholds" json:"actionThresholds"`
}

type ActionThresholdSpec struct {
	ID         string `yaml:"id" json:"id"`
	Action     string `yaml:"action" json:"action"`
	Threshold  int64  `yaml:"threshold" json:"threshold"`
	Repeatable bool   `yaml:"repeatable" json:"repeatable"`
}

type ActionRuleSpec struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	Trigger    TriggerSpec `yaml:"trigger" json:"trigger"`
	Action     ActionSpec  `yaml:"action" json:"action"`
	Repeatable bool        `yaml:"repeatable" json:"repeatable"`
}

type TriggerSpec struct {
	Type  string `yaml:"type" json:"type"`
	Count int64  `yaml:"count" json:"count"`
}

type ActionSpec struct {
	Type    string         `yaml:"type" json:"type"`
	Payload map[string]any `yaml:"payload" json:"payload"`
}
