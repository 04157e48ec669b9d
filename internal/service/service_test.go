package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
	"campaign-action-engine/internal/engine"
	"campaign-action-engine/internal/journey"
	"campaign-action-engine/internal/storage"
)

type mockSource struct {
	doc catalog.Document
	err error
}

func (m *mockSource) LoadDocument(context.Context) (catalog.Document, error) {
	return m.doc, m.err
}

func testDoc() catalog.Document {
	return catalog.Document{
		Campaigns: []catalog.CampaignSpec{{
			ID:                "c1",
			JourneyTemplateID: "j1",
			RewardCriteria: []catalog.RewardCriterionSpec{
				{ID: "r", Action: "REFERRAL", RewardType: "POINTS", RewardValue: 10},
			},
		}},
		Templates: []journey.Template{
			{ID: "j1", Steps: []journey.Step{
				{ID: "a", Type: journey.WelcomeScreen, Title: "Hi", Description: "d", ButtonText: "Go"},
				{ID: "b", Type: journey.ThankYouScreen, Title: "Bye", Description: "d"},
			}},
			{ID: "draft", Draft: true},
		},
	}
}

func loaded(t *testing.T) *Catalogs {
	t.Helper()
	c := NewCatalogs(&mockSource{doc: testDoc()})
	require.NoError(t, c.Reload(context.Background()))
	return c
}

// flakyStore reports contention for the first failures updates.
type flakyStore struct {
	*counter.MemoryStore
	failures int
	calls    int
}

func (s *flakyStore) Update(ctx context.Context, scope counter.Scope, fn func(counter.Tx) error) error {
	s.calls++
	if s.calls <= s.failures {
		return &counter.ContentionError{Scope: scope, Backend: "fake", Err: errors.New("busy")}
	}
	return s.MemoryStore.Update(ctx, scope, fn)
}

func referral(campaignID string) engine.Request {
	return engine.Request{Event: engine.Event{ID: "e1", CampaignID: campaignID, UserID: "U", Action: catalog.Referral, Timestamp: time.Now()}}
}

func TestCatalogs_ReloadKeepsLastGoodSnapshot(t *testing.T) {
	src := &mockSource{doc: testDoc()}
	c := NewCatalogs(src)

	_, ok := c.Load()
	assert.False(t, ok)

	require.NoError(t, c.Reload(context.Background()))
	first, ok := c.Load()
	require.True(t, ok)

	src.doc.Campaigns[0].Budget = -1
	assert.Error(t, c.Reload(context.Background()))
	src.err = errors.New("db down")
	assert.Error(t, c.Reload(context.Background()))

	cur, _ := c.Load()
	assert.Same(t, first, cur)
}

func TestIngestor_RetriesContention(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxAttempts int
		wantErr     bool
	}{
		{"no contention", 0, 3, false},
		{"recovers", 2, 3, false},
		{"gives up", 3, 3, true},
		{"single attempt", 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &flakyStore{MemoryStore: counter.NewMemoryStore(), failures: tt.failures}
			ing := NewIngestor(engine.NewEvaluator(), loaded(t), store, tt.maxAttempts)

			res, err := ing.Ingest(context.Background(), referral("c1"))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, counter.IsContention(err))
				assert.Equal(t, tt.maxAttempts, store.calls)
				return
			}
			require.NoError(t, err)
			require.Len(t, res.Effects, 1)
			assert.Equal(t, "c1/U/r/1", res.Effects[0].Key)
		})
	}
}

func TestIngestor_Errors(t *testing.T) {
	store := counter.NewMemoryStore()

	ing := NewIngestor(engine.NewEvaluator(), NewCatalogs(&mockSource{}), store, 1)
	_, err := ing.Ingest(context.Background(), referral("c1"))
	assert.ErrorIs(t, err, ErrCatalogNotReady)

	ing = NewIngestor(engine.NewEvaluator(), loaded(t), store, 1)
	_, err = ing.Ingest(context.Background(), referral("nope"))
	assert.ErrorIs(t, err, ErrUnknownCampaign)
}

type opaqueStore struct{ counter.Store }

func TestIngestor_Summary(t *testing.T) {
	store := counter.NewMemoryStore()
	ing := NewIngestor(engine.NewEvaluator(), loaded(t), store, 1)
	for i := 0; i < 3; i++ {
		_, err := ing.Ingest(context.Background(), referral("c1"))
		require.NoError(t, err)
	}

	sum, err := ing.Summary(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, sum.Rules, 1)
	assert.Equal(t, int64(3), sum.Rules[0].TotalCount)
	assert.Equal(t, 1, sum.Rules[0].Users)
	assert.Zero(t, sum.Orphaned)

	ctx := context.Background()
	require.NoError(t, store.Update(ctx, counter.Scope{CampaignID: "c1", UserID: "Z"}, func(tx counter.Tx) error {
		return tx.Put(ctx, "retired", counter.Counter{Count: 4})
	}))
	sum, err = ing.Summary(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Orphaned)
	assert.Equal(t, 1, sum.Rules[0].Users)

	ing = NewIngestor(engine.NewEvaluator(), loaded(t), opaqueStore{store}, 1)
	_, err = ing.Summary(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrListingUnsupported)
}

func TestJourneys(t *testing.T) {
	j := NewJourneys(loaded(t), storage.NewSessions(time.Hour))

	v, err := j.Start("j1")
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, uint64(1), v.Turn)
	assert.Equal(t, "a", v.Current.ID)
	assert.False(t, v.Terminal)

	v, tr, err := j.Advance(v.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, journey.OutcomeAdvanced, tr.Outcome)
	assert.True(t, v.Terminal)
	assert.Len(t, v.Revealed, 2)

	_, tr, err = j.Advance(v.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, journey.OutcomeAlreadyAtEnd, tr.Outcome)

	got, err := j.Get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = j.Start("draft")
	assert.ErrorIs(t, err, ErrDraftTemplate)
	_, err = j.Start("nope")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
	_, err = j.Get("nope")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

func TestValidateTemplate(t *testing.T) {
	r := ValidateTemplate(testDoc().Templates[0])
	assert.True(t, r.Complete)
	assert.NotNil(t, r.Issues)

	r = ValidateTemplate(journey.Template{ID: "x"})
	assert.False(t, r.Complete)
	assert.NotEmpty(t, r.Issues)
}
