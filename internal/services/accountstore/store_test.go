package accountstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
)

const testAccountID = "GDQERENWDDSQZS7R7WKHZI3BSOYMV3FSWR7TFUYFTKQ447PIX6NREOJM"

type fakeLoader struct {
	mu       sync.Mutex
	snapshot domain.AccountSnapshot
	err      error
	calls    atomic.Int64
	gate     chan struct{} // when set, LoadAccount blocks until it closes
}

func (f *fakeLoader) set(snapshot domain.AccountSnapshot, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
	f.err = err
}

func (f *fakeLoader) LoadAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error) {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gate
	snapshot, err := f.snapshot, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	snapshot.PublicKey = accountID
	return snapshot, nil
}

func fundedSnapshot(balance string) domain.AccountSnapshot {
	return domain.AccountSnapshot{
		Funded:   true,
		Sequence: 42,
		Balances: []domain.BalanceLine{
			{Type: domain.BalanceLineNative, Balance: balance},
		},
		FetchedAt: time.Now().UTC(),
	}
}

func newTestStore(loader *fakeLoader) *Store {
	return New(loader, zap.NewNop())
}

func TestLoadStoresSnapshot(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("100.0000000"), nil)
	store := newTestStore(loader)

	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	snapshot := store.Snapshot()
	require.True(t, snapshot.Funded)
	require.Equal(t, testAccountID, snapshot.PublicKey)
	require.Len(t, snapshot.Balances, 1)
}

func TestLoadUnfundedAccountIsNotAnError(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(domain.AccountSnapshot{Funded: false, Balances: []domain.BalanceLine{}, FetchedAt: time.Now()}, nil)
	store := newTestStore(loader)

	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	snapshot := store.Snapshot()
	require.False(t, snapshot.Funded)
	require.Empty(t, snapshot.Balances)
}

func TestLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("100.0000000"), nil)
	store := newTestStore(loader)
	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	loader.set(domain.AccountSnapshot{}, &domain.FetchError{Cause: errors.New("horizon unreachable")})

	err := store.Load(context.Background())
	var fetchErr *domain.FetchError
	require.ErrorAs(t, err, &fetchErr)

	// stale-but-valid beats blanked state
	snapshot := store.Snapshot()
	require.True(t, snapshot.Funded)
	require.Equal(t, "100.0000000", snapshot.Balances[0].Balance)
}

func TestLoadWithoutKeyFails(t *testing.T) {
	store := newTestStore(&fakeLoader{})
	err := store.Load(context.Background())
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestSnapshotIsIdempotentAndIsolated(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("7.0000000"), nil)
	store := newTestStore(loader)
	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	first := store.Snapshot()
	second := store.Snapshot()
	require.Equal(t, first, second)

	// mutating a returned copy must not leak into the store
	first.Balances[0].Balance = "0.0000000"
	require.Equal(t, "7.0000000", store.Snapshot().Balances[0].Balance)
}

func TestLatestInitiatedLoadWins(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("1.0000000"), nil)
	store := newTestStore(loader)
	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	// first load blocks mid-flight with the old balance
	gate := make(chan struct{})
	loader.mu.Lock()
	loader.gate = gate
	loader.snapshot = fundedSnapshot("1.0000000")
	loader.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- store.Load(context.Background())
	}()

	// wait for the slow load to be in flight
	require.Eventually(t, func() bool { return loader.calls.Load() >= 2 }, time.Second, time.Millisecond)

	// a newer load completes with the new balance
	loader.mu.Lock()
	loader.gate = nil
	loader.snapshot = fundedSnapshot("2.0000000")
	loader.mu.Unlock()
	require.NoError(t, store.Load(context.Background()))
	require.Equal(t, "2.0000000", store.Snapshot().Balances[0].Balance)

	// the stale response lands afterwards and must be discarded
	close(gate)
	require.NoError(t, <-done)
	require.Equal(t, "2.0000000", store.Snapshot().Balances[0].Balance)
}

func TestSetKeyZeroClearsSnapshot(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("5.0000000"), nil)
	store := newTestStore(loader)
	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))
	require.True(t, store.Snapshot().Funded)

	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{}))
	require.False(t, store.Snapshot().Funded)
	require.Empty(t, store.Snapshot().Balances)
}

func TestPollingRefreshesAndStops(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("3.0000000"), nil)
	store := newTestStore(loader)
	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	store.StartPolling(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return loader.calls.Load() >= 3 }, time.Second, time.Millisecond)

	store.StopPolling()
	settled := loader.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, loader.calls.Load())
}

func TestStopPollingIsIdempotent(t *testing.T) {
	store := newTestStore(&fakeLoader{})

	// stopping a poller that never ran must be a no-op
	store.StopPolling()
	store.StopPolling()
}

func TestPollingIsReferenceCounted(t *testing.T) {
	loader := &fakeLoader{}
	loader.set(fundedSnapshot("3.0000000"), nil)
	store := newTestStore(loader)
	require.NoError(t, store.SetKey(context.Background(), domain.KeyMaterial{PublicKey: testAccountID}))

	store.StartPolling(context.Background(), 5*time.Millisecond)
	store.StartPolling(context.Background(), 5*time.Millisecond)

	// one release keeps the shared poller alive
	store.StopPolling()
	before := loader.calls.Load()
	require.Eventually(t, func() bool { return loader.calls.Load() > before }, time.Second, time.Millisecond)

	store.StopPolling()
	settled := loader.calls.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, loader.calls.Load())
}
