package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/orderfeed/internal/order/aggregate"
	"github.com/smallbiznis/orderfeed/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func records() []domain.OrderRecord {
	at := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	return []domain.OrderRecord{
		{ID: "o1", ItemLabel: "86 Diamonds", Status: domain.StatusCompleted, OccurredAt: at},
		{ID: "o2", ItemLabel: "Weekly Pass", Status: domain.StatusPending, OccurredAt: at.Add(time.Hour)},
		{ID: "o3", ItemLabel: "172 Diamonds", Status: domain.StatusFailed, OccurredAt: at.Add(2 * time.Hour)},
		{ID: "t1", ItemLabel: "Wallet", Status: domain.StatusCompleted, IsTopUp: true, OccurredAt: at},
	}
}

func noDelay() time.Duration { return 0 }

func startService(t *testing.T, delay func() time.Duration) (*aggregate.Merger, *Service) {
	t.Helper()
	merger := aggregate.New(zap.NewNop())
	svc := New(merger, delay, zap.NewNop())
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return merger, svc
}

func TestServiceLoadingUntilReady(t *testing.T) {
	merger, svc := startService(t, noDelay)
	assert.Equal(t, PhaseLoading, svc.View().Phase)

	merger.Expect([]string{"k"})
	merger.ReplacePartition("k", nil)
	require.Eventually(t, func() bool { return svc.View().Phase == PhaseEmpty }, time.Second, 5*time.Millisecond)

	merger.ReplacePartition("k", records())
	require.Eventually(t, func() bool { return svc.RawCount() == 3 }, time.Second, 5*time.Millisecond)
	v := svc.View()
	assert.Equal(t, PhaseReady, v.Phase)
	assert.Equal(t, []string{"o3", "o2", "o1"}, ids(svc.CurrentOrders()))
	assert.Equal(t, 3, svc.FilteredCount())
}

func TestServiceFiltersNeverExceedRaw(t *testing.T) {
	merger, svc := startService(t, noDelay)
	merger.ReplacePartition("k", records())
	require.Eventually(t, func() bool { return svc.RawCount() == 3 }, time.Second, 5*time.Millisecond)

	svc.SetSearchText("diamonds")
	assert.Equal(t, []string{"o3", "o1"}, ids(svc.CurrentOrders()))
	assert.LessOrEqual(t, svc.FilteredCount(), svc.RawCount())

	svc.SetStatusFilter("FAILED")
	assert.Equal(t, []string{"o3"}, ids(svc.CurrentOrders()))

	svc.SetStatusFilter("pending")
	assert.Equal(t, 0, svc.FilteredCount())
	assert.Equal(t, PhaseNoMatches, svc.View().Phase)

	svc.SetStatusFilter("all")
	svc.SetSearchText("")
	assert.Equal(t, svc.RawCount(), svc.FilteredCount())
	assert.Equal(t, "all", svc.View().Status)
}

func TestServiceDebouncesSearch(t *testing.T) {
	merger, svc := startService(t, func() time.Duration { return 40 * time.Millisecond })
	merger.ReplacePartition("k", records())
	require.Eventually(t, func() bool { return svc.RawCount() == 3 }, time.Second, 5*time.Millisecond)

	svc.SetSearchText("w")
	svc.SetSearchText("weekly")
	assert.Equal(t, "weekly", svc.View().Search)
	assert.Equal(t, 3, svc.FilteredCount())

	require.Eventually(t, func() bool { return svc.FilteredCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"o2"}, ids(svc.CurrentOrders()))

	svc.SetSearchText("172")
	svc.FlushSearch()
	assert.Equal(t, []string{"o3"}, ids(svc.CurrentOrders()))
}

func TestServiceSubscribePushesRecomputes(t *testing.T) {
	merger, svc := startService(t, noDelay)
	sub := svc.Subscribe()
	defer sub.Close()

	first := <-sub.Updates()
	assert.Equal(t, PhaseLoading, first.Phase)

	merger.ReplacePartition("k", records())
	var v View
	require.Eventually(t, func() bool {
		select {
		case v = <-sub.Updates():
			return v.RawCount == 3
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	svc.SetStatusFilter("completed")
	v = <-sub.Updates()
	assert.Equal(t, 1, v.FilteredCount)
	assert.Greater(t, v.Version, first.Version)

	sub.Close()
	_, ok := <-sub.Updates()
	assert.False(t, ok)
}

func TestServiceCurrentOrdersIsACopy(t *testing.T) {
	merger, svc := startService(t, noDelay)
	merger.ReplacePartition("k", records())
	require.Eventually(t, func() bool { return svc.RawCount() == 3 }, time.Second, 5*time.Millisecond)

	got := svc.CurrentOrders()
	got[0].ItemLabel = "mutated"
	assert.NotEqual(t, "mutated", svc.CurrentOrders()[0].ItemLabel)
}

func ids(recs []domain.OrderRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
