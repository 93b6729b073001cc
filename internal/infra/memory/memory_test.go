package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/infra/memory"
)

func newJob(t *testing.T, brand string, created time.Time) *model.GenomeJob {
	t.Helper()
	j := model.NewGenomeJob(model.BrandInput{Brand: brand, DeliveryEmail: "a@b.co"}, "queued")
	j.CreatedAt = created
	return j
}

func complete(t *testing.T, j *model.GenomeJob, at time.Time) {
	t.Helper()
	require.NoError(t, j.Start())
	require.NoError(t, j.SetArtifact(model.Artifact{Key: "reports/" + j.ID + ".pdf"}))
	require.NoError(t, j.Complete(true, "done"))
	j.CompletedAt = &at
}

func TestGenomeJobRepo_SaveFindCopies(t *testing.T) {
	ctx := context.Background()
	r, err := memory.NewGenomeJobRepo(10)
	require.NoError(t, err)

	j := newJob(t, "acme", time.Now())
	require.NoError(t, r.Save(ctx, j))
	j.StageLabel = "mutated after save"

	got, err := r.FindByID(ctx, j.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "mutated after save", got.StageLabel)

	got.StageLabel = "mutated after read"
	again, _ := r.FindByID(ctx, j.ID)
	assert.NotEqual(t, "mutated after read", again.StageLabel)

	_, err = r.FindByID(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGenomeJobRepo_RetentionAndOrder(t *testing.T) {
	ctx := context.Background()
	r, err := memory.NewGenomeJobRepo(3)
	require.NoError(t, err)
	base := time.Now()
	var ids []string
	for i := 0; i < 4; i++ {
		j := newJob(t, fmt.Sprintf("b%d", i), base.Add(time.Duration(i)*time.Second))
		ids = append(ids, j.ID)
		require.NoError(t, r.Save(ctx, j))
	}

	list, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[3], list[0].ID, "newest first")
	_, err = r.FindByID(ctx, ids[0])
	assert.True(t, errors.Is(err, domain.ErrNotFound), "oldest evicted")

	list, _ = r.List(ctx, 2)
	assert.Len(t, list, 2)
}

func TestGenomeJobRepo_LatestCompletedByBrand(t *testing.T) {
	ctx := context.Background()
	r, _ := memory.NewGenomeJobRepo(10)
	now := time.Now()

	older := newJob(t, "Acme", now)
	complete(t, older, now.Add(time.Minute))
	newer := newJob(t, "acme", now)
	complete(t, newer, now.Add(2*time.Minute))
	running := newJob(t, "ACME", now)
	require.NoError(t, running.Start())
	for _, j := range []*model.GenomeJob{older, newer, running} {
		require.NoError(t, r.Save(ctx, j))
	}

	got, err := r.FindLatestCompletedByBrand(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	_, err = r.FindLatestCompletedByBrand(ctx, "other")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestChatSessionRepo(t *testing.T) {
	ctx := context.Background()
	r := memory.NewChatSessionRepo()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Save(ctx, model.NewChatSession(fmt.Sprintf("brand%d", i), nil))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Count(ctx))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 50)

	got, err := r.FindByID(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Same(t, list[0], got)

	require.NoError(t, r.Delete(ctx, got.ID))
	_, err = r.FindByID(ctx, got.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Equal(t, 49, r.Count(ctx))
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	rl := memory.NewRateLimiter()
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "k", 3, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "k", 3, time.Hour)
	assert.False(t, ok)
	ok, _ = rl.Allow(ctx, "other", 3, time.Hour)
	assert.True(t, ok)

	assert.Equal(t, 0, rl.Prune(time.Hour))
	assert.Equal(t, 2, rl.Prune(0))
}
