package engine

import (
	"context"
	"fmt"
	"testing"

	"campaign-action-engine/internal/catalog"
	"campaign-action-engine/internal/counter"
)

func BenchmarkEvaluate(b *testing.B) {
	cat := catalogFor(b, catalog.CampaignSpec{
		ID: "c1",
		RewardCriteria: []catalog.RewardCriterionSpec{
			{ID: "w3", Action: "WISHLIST_ADD", RewardType: "POINTS", ActionCount: 3},
			{ID: "w10", Action: "WISHLIST_ADD", RewardType: "FIXED_AMOUNT", RewardValue: 5, ActionCount: 10},
		},
		Alerts: catalog.AlertConfigSpec{ActionThresholds: []catalog.ActionThresholdSpec{
			{ID: "w50", Action: "WISHLIST_ADD", Threshold: 50},
		}},
	})
	store := counter.NewMemoryStore()
	e := NewEvaluator()
	ctx := context.Background()

	reqs := make([]Request, 64)
	for i := range reqs {
		reqs[i] = Request{Event: Event{ID: fmt.Sprint(i), CampaignID: "c1", UserID: fmt.Sprintf("u%d", i), Action: catalog.WishlistAdd}}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Evaluate(ctx, reqs[i%len(reqs)], cat, store); err != nil {
			b.Fatal(err)
		}
	}
}
