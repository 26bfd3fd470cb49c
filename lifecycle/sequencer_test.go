package lifecycle

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSequencerOrder(t *testing.T) {
	seq := NewLocalSequencer()
	ctx := context.Background()

	want := []models.Outcome{
		models.OutcomeReuse, models.OutcomeRecycle, models.OutcomeArt,
		models.OutcomeReuse, models.OutcomeRecycle,
	}
	for i, w := range want {
		got, err := seq.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, w, got, "draw %d", i)
	}
}

func TestLocalSequencerConcurrentDrawsStayBalanced(t *testing.T) {
	seq := NewLocalSequencer()
	ctx := context.Background()

	var (
		mu     sync.Mutex
		counts = map[models.Outcome]int{}
		wg     sync.WaitGroup
	)
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, _ := seq.Next(ctx)
			mu.Lock()
			counts[o]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, o := range models.Outcomes {
		assert.Equal(t, 100, counts[o], o)
	}
}

func TestRedisSequencerSharesRotation(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis integration tests")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	key := "panelchain:test:" + t.Name()
	require.NoError(t, client.Del(ctx, key).Err())
	t.Cleanup(func() { client.Del(context.Background(), key) })

	a := NewRedisSequencer(client, key)
	b := NewRedisSequencer(client, key)

	first, err := a.Next(ctx)
	require.NoError(t, err)
	second, err := b.Next(ctx)
	require.NoError(t, err)
	third, err := a.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, []models.Outcome{models.OutcomeReuse, models.OutcomeRecycle, models.OutcomeArt}, []models.Outcome{first, second, third})
}
