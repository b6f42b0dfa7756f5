package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mtlprog/holdings/internal/domain"
)

type mockSnapshotGenerator struct {
	callCount atomic.Int32
	mu        sync.Mutex
	accounts  []string
	failFor   string
}

func (m *mockSnapshotGenerator) Generate(_ context.Context, accountID string, at time.Time) (domain.Snapshot, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.accounts = append(m.accounts, accountID)
	m.mu.Unlock()
	if accountID == m.failFor {
		return domain.Snapshot{}, errors.New("boom")
	}
	return domain.Snapshot{AccountID: accountID, TakenAt: at}, nil
}

type mockHook struct {
	name  string
	err   error
	calls []string
}

func (m *mockHook) Name() string { return m.name }

func (m *mockHook) AfterSnapshot(_ context.Context, snap domain.Snapshot) error {
	m.calls = append(m.calls, snap.AccountID)
	return m.err
}

func TestSnapshotWorkerRunsAndShutdown(t *testing.T) {
	mock := &mockSnapshotGenerator{}
	w := NewSnapshotWorker(mock, []string{"acc-1"}, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	w.Run(ctx)

	if got := mock.callCount.Load(); got < 2 {
		t.Errorf("call count = %d, want >= 2 (startup + ticks)", got)
	}
}

func TestSnapshotWorkerHooksRunOnlyOnSuccess(t *testing.T) {
	mock := &mockSnapshotGenerator{failFor: "acc-2"}
	hook := &mockHook{name: "export"}
	w := NewSnapshotWorker(mock, []string{"acc-1", "acc-2", "acc-3"}, time.Hour, hook)

	w.runOnce(context.Background())

	if len(mock.accounts) != 3 {
		t.Errorf("generated for %v, want all three accounts", mock.accounts)
	}
	if len(hook.calls) != 2 || hook.calls[0] != "acc-1" || hook.calls[1] != "acc-3" {
		t.Errorf("hook calls = %v, want [acc-1 acc-3]", hook.calls)
	}
}

func TestSnapshotWorkerTruncatesTimestamp(t *testing.T) {
	mock := &mockSnapshotGenerator{}
	hook := &mockHook{name: "h"}
	w := NewSnapshotWorker(mock, []string{"acc-1"}, time.Hour, hook)
	w.now = func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 789, time.UTC) }

	var got time.Time
	w.generator = generatorFunc(func(_ context.Context, _ string, at time.Time) (domain.Snapshot, error) {
		got = at
		return domain.Snapshot{}, nil
	})
	w.runOnce(context.Background())

	if want := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC); !got.Equal(want) {
		t.Errorf("at = %v, want %v", got, want)
	}
}

type generatorFunc func(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error)

func (f generatorFunc) Generate(ctx context.Context, accountID string, at time.Time) (domain.Snapshot, error) {
	return f(ctx, accountID, at)
}

func TestRunHooksContinuesAfterFailure(t *testing.T) {
	failing := &mockHook{name: "archive", err: errors.New("disk full")}
	next := &mockHook{name: "export"}

	RunHooks(context.Background(), domain.Snapshot{AccountID: "acc-1"}, failing, next)

	if len(failing.calls) != 1 || len(next.calls) != 1 {
		t.Errorf("calls = %v / %v, want one each", failing.calls, next.calls)
	}
}
