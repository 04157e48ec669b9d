package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/engine"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidate_Valid(t *testing.T) {
	out, err := run(t, "validate", filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ catalog valid: 2 campaign(s), 2 template(s)")
	assert.Contains(t, out, "warning:")
	assert.Contains(t, out, "draft wip incomplete")
}

func TestValidate_JSON(t *testing.T) {
	out, err := run(t, "--format", "json", "validate", filepath.Join("testdata", "catalog.yaml"))
	require.NoError(t, err)

	var res ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.Campaigns)
	require.Len(t, res.Templates, 2)
	assert.True(t, res.Templates[0].Complete)
	assert.False(t, res.Templates[1].Complete)
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
campaigns:
  - id: c
    budget: -5
    rewardCriteria:
      - id: r
        action: DANCING
        rewardType: POINTS
`), 0o600))

	out, err := run(t, "validate", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCatalog)
	assert.Contains(t, out, "budget")
	assert.Contains(t, out, "DANCING")
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := run(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "--format", "xml", "validate", filepath.Join("testdata", "catalog.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestReplay(t *testing.T) {
	out, err := run(t, "replay", filepath.Join("testdata", "catalog.yaml"), filepath.Join("testdata", "events.jsonl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var effects []map[string]any
	for _, l := range lines {
		if !strings.HasPrefix(l, "{") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		effects = append(effects, m)
	}
	// e2: 2nd UGC (reward) + high value; e3: coupon automation
	require.Len(t, effects, 3)
	assert.Equal(t, "summer/ana/ugc-reward/2", effects[0]["key"])
	assert.Equal(t, "summer/ana/HIGH_VALUE_UGC/e2", effects[1]["key"])
	assert.Equal(t, "summer/ben/coupon-after-feedback/1", effects[2]["key"])

	assert.Contains(t, out, "# 4 event(s), 3 effect(s), 1 skipped")
	assert.Contains(t, out, "summer/ana/ugc-reward count=2 lastFired=2")
	assert.Contains(t, out, "summer/ben/coupon-after-feedback count=1 lastFired=1")
}

func TestReplay_JSON(t *testing.T) {
	out, err := run(t, "--format", "json", "replay", filepath.Join("testdata", "catalog.yaml"), filepath.Join("testdata", "events.jsonl"))
	require.NoError(t, err)

	var res struct {
		Effects  []json.RawMessage `json:"effects"`
		Counters []json.RawMessage `json:"counters"`
		Skipped  int               `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.Effects, 3)
	assert.Len(t, res.Counters, 2)
	assert.Equal(t, 1, res.Skipped)
}

func TestReplay_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"campaignId\":\"summer\"}\nnot json\n"), 0o600))

	_, err := run(t, "replay", filepath.Join("testdata", "catalog.yaml"), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadRequests(t *testing.T) {
	in := `{"campaignId":"c","userId":"u","action":"REFERRAL","remainingBudget":12.5}` + "\n\n" +
		`{"eventId":"x","campaignId":"c","userId":"u","action":" wishlist_add "}` + "\n"
	reqs, err := readRequests(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, engine.Request{
		Event:           engine.Event{ID: "line-1", CampaignID: "c", UserID: "u", Action: "REFERRAL"},
		RemainingBudget: func() *float64 { v := 12.5; return &v }(),
	}, reqs[0])
	assert.Equal(t, "x", reqs[1].ID)
	assert.Equal(t, catalog.WishlistAdd, reqs[1].Action, "actions are canonicalized as over HTTP")
}

func TestJourney(t *testing.T) {
	out, err := run(t, "journey", filepath.Join("testdata", "catalog.yaml"), "tryon")
	require.NoError(t, err)
	assert.Contains(t, out, "1. [WELCOME_SCREEN] Welcome")
	assert.Contains(t, out, "2. [ACTION_VTO] Try these on")
	assert.Contains(t, out, "   - Jacket")
	assert.Contains(t, out, "3. [THANK_YOU_SCREEN] Thank you")
	assert.NotContains(t, out, "4.")
}

func TestJourney_Errors(t *testing.T) {
	_, err := run(t, "journey", filepath.Join("testdata", "catalog.yaml"), "wip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "draft")

	_, err = run(t, "journey", filepath.Join("testdata", "catalog.yaml"), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}
