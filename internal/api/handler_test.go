package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
	"campaign-action-engine/internal/engine"
	"campaign-action-engine/internal/journey"
	"campaign-action-engine/internal/service"
	"campaign-action-engine/internal/storage"
)

type docSource catalog.Document

func (d docSource) LoadDocument(context.Context) (catalog.Document, error) {
	return catalog.Document(d), nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	doc := catalog.Document{
		Campaigns: []catalog.CampaignSpec{{
			ID: "c1",
			RewardCriteria: []catalog.RewardCriterionSpec{
				{ID: "share2", Action: "SOCIAL_SHARE", RewardType: "POINTS", RewardValue: 20, ActionCount: 2},
			},
			Alerts: catalog.AlertConfigSpec{NotifyOnHighValueUGC: true},
		}},
		Templates: []journey.Template{{ID: "j1", Steps: []journey.Step{
			{ID: "a", Type: journey.WelcomeScreen, Title: "Hi", Description: "d", ButtonText: "Go"},
			{ID: "b", Type: journey.ThankYouScreen, Title: "Bye", Description: "d"},
		}}},
	}
	catalogs := service.NewCatalogs(docSource(doc))
	require.NoError(t, catalogs.Reload(context.Background()))

	ingest := service.NewIngestor(engine.NewEvaluator(), catalogs, counter.NewMemoryStore(), 3)
	journeys := service.NewJourneys(catalogs, storage.NewSessions(time.Hour))
	return Router(NewHandler(ingest, journeys))
}

func do(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPostEvent(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		body        string
		wantStatus  int
		wantEffects int
	}{
		{"bad json", "/v1/campaigns/c1/events", "{", http.StatusBadRequest, 0},
		{"missing user", "/v1/campaigns/c1/events", `{"action":"SOCIAL_SHARE"}`, http.StatusBadRequest, 0},
		{"missing action", "/v1/campaigns/c1/events", `{"userId":"U"}`, http.StatusBadRequest, 0},
		{"campaign mismatch", "/v1/campaigns/c1/events", `{"campaignId":"c2","userId":"U","action":"SOCIAL_SHARE"}`, http.StatusBadRequest, 0},
		{"unknown campaign", "/v1/campaigns/zz/events", `{"userId":"U","action":"SOCIAL_SHARE"}`, http.StatusNotFound, 0},
		{"counted", "/v1/campaigns/c1/events", `{"userId":"U","action":"social_share"}`, http.StatusOK, 0},
		{"high value ugc", "/v1/campaigns/c1/events", `{"userId":"U","action":"UGC_CREATION","value":500}`, http.StatusOK, 1},
		{"unknown action kind", "/v1/campaigns/c1/events", `{"userId":"U","action":"MOONWALK"}`, http.StatusOK, 0},
	}
	h := newTestRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.url, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if w.Code != http.StatusOK {
				return
			}
			var resp struct {
				EventID string            `json:"eventId"`
				Effects []json.RawMessage `json:"effects"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.EventID, 26, "ULID assigned")
			assert.Len(t, resp.Effects, tt.wantEffects)
		})
	}
}

func TestPostEvent_RewardOnSecondShare(t *testing.T) {
	h := newTestRouter(t)
	body := `{"eventId":"e%d","userId":"U","action":"SOCIAL_SHARE"}`

	w := do(t, h, http.MethodPost, "/v1/campaigns/c1/events", strings.Replace(body, "%d", "1", 1))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/v1/campaigns/c1/events", strings.Replace(body, "%d", "2", 1))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		EventID string `json:"eventId"`
		Effects []struct {
			Key     string `json:"key"`
			Kind    string `json:"kind"`
			Payload struct {
				RewardValue float64 `json:"rewardValue"`
			} `json:"payload"`
		} `json:"effects"`
		Counters []counter.Entry `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "e2", resp.EventID)
	require.Len(t, resp.Effects, 1)
	assert.Equal(t, "REWARD_GRANT", resp.Effects[0].Kind)
	assert.Equal(t, "c1/U/share2/2", resp.Effects[0].Key)
	assert.Equal(t, 20.0, resp.Effects[0].Payload.RewardValue)
	require.Len(t, resp.Counters, 1)
	assert.Equal(t, int64(2), resp.Counters[0].Counter.Count)

	w = do(t, h, http.MethodGet, "/v1/campaigns/c1/counters", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum engine.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	require.Len(t, sum.Rules, 1)
	assert.Equal(t, 1, sum.Rules[0].FiredUsers)
}

func TestValidateTemplate(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/v1/templates/validate", `{"id":"t","steps":[{"id":"s","type":"ACTION_VTO","prompt":"p","description":"d"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var rep service.TemplateReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	assert.False(t, rep.Complete)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, "personImageUrl", rep.Issues[0].Field)

	w = do(t, h, http.MethodPost, "/v1/templates/validate", `nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJourneySessions(t *testing.T) {
	h := newTestRouter(t)

	w := do(t, h, http.MethodPost, "/v1/templates/j1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var v service.SessionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "a", v.Current.ID)

	type advance struct {
		Outcome journey.Outcome     `json:"outcome"`
		State   service.SessionView `json:"state"`
	}
	steps := []struct {
		turn string
		want journey.Outcome
	}{
		{`{"turn":1}`, journey.OutcomeAdvanced},
		{`{"turn":1}`, journey.OutcomeAlreadyAtEnd},
	}
	for _, s := range steps {
		w = do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/advance", s.turn)
		require.Equal(t, http.StatusOK, w.Code)
		var a advance
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
		assert.Equal(t, s.want, a.Outcome)
		assert.Equal(t, 1, a.State.Cursor)
	}

	w = do(t, h, http.MethodGet, "/v1/sessions/"+v.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/advance", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/sessions/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/v1/templates/nope/sessions", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)
	w := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	do(t, h, http.MethodPost, "/v1/campaigns/c1/events", `{"userId":"U","action":"SOCIAL_SHARE"}`)
	w = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "campaign_events_total")
}
