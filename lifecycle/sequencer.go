package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/redis/go-redis/v9"
)

// Sequencer hands out triage outcomes in the fixed order REUSE, RECYCLE, ART,
// starting with REUSE.
type Sequencer interface {
	Next(ctx context.Context) (models.Outcome, error)
}

func outcomeAt(n uint64) models.Outcome {
	return models.Outcomes[n%uint64(len(models.Outcomes))]
}

// LocalSequencer keeps the rotation in process memory. Each process owns an
// independent rotation; deployments running more than one coordinator use
// RedisSequencer instead.
type LocalSequencer struct {
	n atomic.Uint64
}

// NewLocalSequencer returns a sequencer at position zero
func NewLocalSequencer() *LocalSequencer {
	return &LocalSequencer{}
}

func (s *LocalSequencer) Next(context.Context) (models.Outcome, error) {
	return outcomeAt(s.n.Add(1) - 1), nil
}

// RedisSequencer shares one rotation between every process through an INCR
// counter
type RedisSequencer struct {
	client redis.Cmdable
	key    string
}

// NewRedisSequencer uses key on client as the shared counter
func NewRedisSequencer(client redis.Cmdable, key string) *RedisSequencer {
	return &RedisSequencer{client: client, key: key}
}

func (s *RedisSequencer) Next(ctx context.Context) (models.Outcome, error) {
	n, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return "", fmt.Errorf("advancing triage sequence: %w", err)
	}
	if n < 1 {
		return "", fmt.Errorf("triage sequence %s returned %d", s.key, n)
	}
	return outcomeAt(uint64(n - 1)), nil
}
