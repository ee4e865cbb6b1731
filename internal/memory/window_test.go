package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"handbook-agent/internal/domain"
)

func TestWindow_LengthIsMinOfCallsAndCapacity(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 7; i++ {
		w.Record(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		want := i
		if want > 3 {
			want = 3
		}
		require.Len(t, w.RecentTurns(), want)
	}
}

func TestWindow_KeepsLastTurnsInOrder(t *testing.T) {
	w := NewWindow(3)
	for i := 1; i <= 5; i++ {
		w.Record(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	require.Equal(t, []domain.Turn{
		{Input: "q3", Output: "a3"},
		{Input: "q4", Output: "a4"},
		{Input: "q5", Output: "a5"},
	}, w.RecentTurns())
}

func TestWindow_RecentTurnsReturnsCopy(t *testing.T) {
	w := NewWindow(2)
	w.Record("q", "a")
	turns := w.RecentTurns()
	turns[0].Input = "mutated"
	require.Equal(t, "q", w.RecentTurns()[0].Input)
}

func TestWindow_DefaultSize(t *testing.T) {
	require.Equal(t, DefaultWindowSize, NewWindow(0).size)
}

func TestWindow_ConcurrentRecord(t *testing.T) {
	w := NewWindow(3)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Record(fmt.Sprintf("q%d", i), "a")
		}(i)
	}
	wg.Wait()
	require.Equal(t, 3, w.Len())
}

type fakeHistory struct {
	msgs  []domain.Message
	err   error
	calls int
	limit int
}

func (f *fakeHistory) GetHistory(_ context.Context, _ string, limit int) ([]domain.Message, error) {
	f.calls++
	f.limit = limit
	return f.msgs, f.err
}

func TestNewStore_ValidatesWindowSize(t *testing.T) {
	_, err := NewStore(0, 10, time.Minute)
	require.Error(t, err)
}

func TestStore_IsolatesConversations(t *testing.T) {
	s, err := NewStore(3, 10, time.Minute)
	require.NoError(t, err)

	s.Window(context.Background(), "a").Record("hello", "hi")
	require.Equal(t, 1, s.Window(context.Background(), "a").Len())
	require.Zero(t, s.Window(context.Background(), "b").Len())
	require.Equal(t, 2, s.Len())
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s, err := NewStore(3, 2, time.Minute)
	require.NoError(t, err)

	s.Window(context.Background(), "a").Record("q", "a")
	s.Window(context.Background(), "b").Record("q", "a")
	s.Window(context.Background(), "c").Record("q", "a")

	require.Equal(t, 2, s.Len())
	require.Zero(t, s.Window(context.Background(), "a").Len())
}

func TestStore_HydratesFromHistoryOnce(t *testing.T) {
	h := &fakeHistory{msgs: []domain.Message{
		{Text: "q1", Answer: "a1", Status: domain.StatusComplete},
		{Text: "pending", Status: "pending"},
		{Text: "q2", Answer: "a2", Status: domain.StatusComplete},
	}}
	s, err := NewStore(3, 10, time.Minute, WithHistory(h))
	require.NoError(t, err)

	w := s.Window(context.Background(), "conv-1")
	require.Equal(t, []domain.Turn{{Input: "q1", Output: "a1"}, {Input: "q2", Output: "a2"}}, w.RecentTurns())
	require.Equal(t, 3, h.limit)

	_ = s.Window(context.Background(), "conv-1")
	require.Equal(t, 1, h.calls)
}

func TestStore_HydrationErrorLeavesEmptyWindow(t *testing.T) {
	s, err := NewStore(3, 10, time.Minute, WithHistory(&fakeHistory{err: errors.New("dynamodb down")}))
	require.NoError(t, err)
	require.Zero(t, s.Window(context.Background(), "conv-1").Len())
}

func TestStore_ActiveConversationOutlivesTTL(t *testing.T) {
	s, err := NewStore(3, 10, 300*time.Millisecond)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		s.Window(context.Background(), "a").Record(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		time.Sleep(120 * time.Millisecond)
	}
	require.Equal(t, 3, s.Window(context.Background(), "a").Len())
}

func TestStore_IdleConversationExpires(t *testing.T) {
	s, err := NewStore(3, 10, 100*time.Millisecond)
	require.NoError(t, err)

	s.Window(context.Background(), "a").Record("q", "a")
	time.Sleep(250 * time.Millisecond)
	require.Zero(t, s.Window(context.Background(), "a").Len())
}

type blockingHistory struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingHistory) GetHistory(ctx context.Context, conversationID string, _ int) ([]domain.Message, error) {
	if conversationID != "slow" {
		return nil, nil
	}
	close(b.started)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return []domain.Message{{Text: "q", Answer: "a", Status: domain.StatusComplete}}, nil
}

func TestStore_HydrationDoesNotBlockOtherConversations(t *testing.T) {
	h := &blockingHistory{started: make(chan struct{}), release: make(chan struct{})}
	s, err := NewStore(3, 10, time.Minute, WithHistory(h))
	require.NoError(t, err)

	slow := make(chan *Window, 1)
	go func() { slow <- s.Window(context.Background(), "slow") }()
	<-h.started

	done := make(chan struct{})
	go func() {
		s.Window(context.Background(), "fast").Record("q", "a")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("window creation waited on another conversation's hydration")
	}

	close(h.release)
	w := <-slow
	require.Equal(t, 1, w.Len())
	require.Same(t, w, s.Window(context.Background(), "slow"))
	require.Equal(t, 2, s.Len())
}
