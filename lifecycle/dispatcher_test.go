package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/panelchain/journal"
	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/ledger/ledgertest"
	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func dispatcherFixture(t *testing.T) (*Dispatcher, *ledgertest.Memory, *journal.Journal, *observer.ObservedLogs) {
	t.Helper()
	j, err := journal.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	mem := ledgertest.NewMemory()
	return NewDispatcher(mem, j, time.Second, logger.FromZap(zap.New(core))), mem, j, logs
}

func TestDispatcherJournalsFailureAndClearsOnSuccess(t *testing.T) {
	d, _, j, logs := dispatcherFixture(t)
	ctx := context.Background()

	fail := Task{AssetID: "PNL-1", ExternalID: "NFC-1", Steps: []Step{{
		Op:             OpUpdateStatus,
		IntendedStatus: string(ledger.StatusReceived),
		Run:            func(context.Context) error { return ledger.CallFailed("update_status", errors.New("revert")) },
	}}}
	d.Dispatch(ctx, fail)
	d.Dispatch(ctx, fail)
	d.Wait()

	entry, ok, err := j.Get(OpUpdateStatus, "PNL-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, "NFC-1", entry.ExternalID)

	errs := logs.FilterMessage("ledger write failed").All()
	require.Len(t, errs, 2)
	fields := errs[0].ContextMap()
	assert.Equal(t, "PNL-1", fields["asset_id"])
	assert.Equal(t, string(ledger.StatusReceived), fields["intended_status"])

	d.Dispatch(ctx, Task{AssetID: "PNL-1", Steps: []Step{{
		Op:  OpUpdateStatus,
		Run: func(context.Context) error { return nil },
	}}})
	d.Wait()
	_, ok, err = j.Get(OpUpdateStatus, "PNL-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatcherSkipsWhenLedgerUnavailable(t *testing.T) {
	d, mem, j, logs := dispatcherFixture(t)
	mem.SetAvailable(false)

	ran := false
	d.Dispatch(context.Background(), Task{AssetID: "PNL-2", Steps: []Step{{
		Op:  OpRegister,
		Run: func(context.Context) error { ran = true; return nil },
	}}})
	d.Wait()

	assert.False(t, ran)
	_, ok, err := j.Get(OpRegister, "PNL-2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("ledger unavailable, skipping write").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestDispatcherClosedJournalsInsteadOfRunning(t *testing.T) {
	d, _, j, _ := dispatcherFixture(t)
	d.Close()

	ran := false
	d.Dispatch(context.Background(), Task{AssetID: "PNL-3", Steps: []Step{{
		Op:  OpMintToken,
		Run: func(context.Context) error { ran = true; return nil },
	}}})

	assert.False(t, ran)
	entry, ok, err := j.Get(OpMintToken, "PNL-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, errDispatcherClosed.Error(), entry.Error)
}

func TestDispatcherKeepsPerAssetOrder(t *testing.T) {
	d, mem, _, _ := dispatcherFixture(t)
	mem.SetDelay(time.Millisecond)

	var (
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < 20; i++ {
		i := i
		d.Dispatch(context.Background(), Task{AssetID: "PNL-4", Steps: []Step{{
			Op: OpUpdateStatus,
			Run: func(ctx context.Context) error {
				_ = mem.GetEntity(ctx, "NFC-4")
				mu.Lock()
				got = append(got, i)
				mu.Unlock()
				return nil
			},
		}}})
	}
	d.Wait()

	require.Len(t, got, 20)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherDetachesFromCallerContext(t *testing.T) {
	d, _, _, _ := dispatcherFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	var seen error
	d.Dispatch(ctx, Task{AssetID: "PNL-5", Steps: []Step{{
		Op: OpRegister,
		Run: func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			seen = ctx.Err()
			return nil
		},
	}}})
	cancel()
	d.Wait()

	assert.NoError(t, seen)
}

func TestDispatcherCloseRacingDispatch(t *testing.T) {
	d, _, j, _ := dispatcherFixture(t)

	var (
		ran   atomic.Int32
		wg    sync.WaitGroup
		tasks = 50
	)
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Dispatch(context.Background(), Task{AssetID: fmt.Sprintf("PNL-R%d", i), Steps: []Step{{
				Op:  OpRegister,
				Run: func(context.Context) error { ran.Add(1); return nil },
			}}})
		}(i)
	}
	d.Close()
	afterClose := ran.Load()
	wg.Wait()

	skipped, err := j.Pending()
	require.NoError(t, err)
	for _, e := range skipped {
		assert.Equal(t, errDispatcherClosed.Error(), e.Error)
	}
	assert.Equal(t, tasks, int(ran.Load())+len(skipped))
	assert.Equal(t, afterClose, ran.Load(), "no task may run after Close returns")
}
