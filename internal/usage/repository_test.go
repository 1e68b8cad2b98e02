package usage_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"lead-response/internal/calls"
	"lead-response/internal/testdb"
	"lead-response/internal/usage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLRepo_AddIsAnIncrement(t *testing.T) {
	repo := usage.NewSQLRepo(testdb.Open(t))
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := repo.Add(ctx, usage.Record{
			OrganizationID: "org1",
			UsageDate:      day,
			Provider:       calls.ProviderRetell,
			MinutesUsed:    1.5,
			CallsMade:      1,
			CallsAnswered:  i % 2,
			CostAmount:     0.5,
			UpdatedAt:      day.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := repo.Add(ctx, usage.Record{OrganizationID: "org1", UsageDate: day.AddDate(0, 0, 1), Provider: calls.ProviderRetell, MinutesUsed: 2, CallsMade: 1, UpdatedAt: day})
	require.NoError(t, err)

	rows, err := repo.ListRange(ctx, "org1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 4.5, rows[0].MinutesUsed, 1e-9)
	assert.Equal(t, 3, rows[0].CallsMade)
	assert.Equal(t, 1, rows[0].CallsAnswered)
	assert.InDelta(t, 1.5, rows[0].CostAmount, 1e-9)
	assert.Equal(t, "2026-05-01", rows[0].UsageDate.Format(time.DateOnly))

	total, err := repo.MinutesBetween(ctx, "org1", day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.InDelta(t, 6.5, total, 1e-9)

	none, err := repo.MinutesBetween(ctx, "org2", day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Zero(t, none)
}

func TestAdd_ConcurrentIncrementsAreNotLost(t *testing.T) {
	const n = 50
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	repos := map[string]usage.Repository{
		"memory": usage.NewMemoryRepo(),
		"sql":    usage.NewSQLRepo(testdb.Open(t)),
	}
	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := repo.Add(ctx, usage.Record{
						OrganizationID: "org1", UsageDate: day, Provider: calls.ProviderRetell,
						MinutesUsed: 1, CallsMade: 1, CallsAnswered: 1, UpdatedAt: day,
					})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			rows, err := repo.ListRange(ctx, "org1", day, day.AddDate(0, 0, 1))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, n, rows[0].CallsMade)
			assert.Equal(t, n, rows[0].CallsAnswered)
			assert.InDelta(t, float64(n), rows[0].MinutesUsed, 1e-9)
		})
	}
}

func TestAccumulator_ConcurrentDeliveriesCountEachCallOnce(t *testing.T) {
	const n = 40
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := usage.NewMemoryRepo()
	acc := usage.NewAccumulator(repo, usage.NewMemoryClaims(), time.UTC).WithClock(func() time.Time { return now })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		in := usage.Input{
			OrganizationID:  "org1",
			Provider:        calls.ProviderVapi,
			ProviderCallID:  fmt.Sprintf("vc_%d", i),
			DurationSeconds: 60,
			Answered:        true,
		}
		// each call is delivered twice, as a provider retry would
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := acc.Accumulate(ctx, in)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	rows, err := repo.ListRange(ctx, "org1", now.AddDate(0, 0, -1), now.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, n, rows[0].CallsMade)
	assert.InDelta(t, float64(n), rows[0].MinutesUsed, 1e-9)
}

func TestSQLRepo_ReplaceDay(t *testing.T) {
	repo := usage.NewSQLRepo(testdb.Open(t))
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.Add(ctx, usage.Record{OrganizationID: "stale", UsageDate: day, Provider: calls.ProviderVapi, MinutesUsed: 9, CallsMade: 9, UpdatedAt: day})
	require.NoError(t, err)
	_, err = repo.Add(ctx, usage.Record{OrganizationID: "org1", UsageDate: day.AddDate(0, 0, 1), Provider: calls.ProviderVapi, MinutesUsed: 1, CallsMade: 1, UpdatedAt: day})
	require.NoError(t, err)

	require.NoError(t, repo.ReplaceDay(ctx, day, []usage.Record{
		{OrganizationID: "org1", Provider: calls.ProviderRetell, MinutesUsed: 3, CallsMade: 2, CallsAnswered: 1, UpdatedAt: day},
	}))

	stale, err := repo.ListRange(ctx, "stale", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, stale)

	rows, err := repo.ListRange(ctx, "org1", day, day.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, calls.ProviderRetell, rows[0].Provider)
	assert.Equal(t, 2, rows[0].CallsMade)
	assert.Equal(t, calls.ProviderVapi, rows[1].Provider)
}
