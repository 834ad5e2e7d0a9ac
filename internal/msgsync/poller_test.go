package msgsync_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesprial/guildview/internal/msgsync"
)

func Test_Poller_TicksUntilStopped(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	p := msgsync.StartPoller(context.Background(), 5*time.Millisecond, func(ctx context.Context) {
		polls.Add(1)
	})

	require.Eventually(t, func() bool { return polls.Load() >= 3 }, time.Second, time.Millisecond)
	p.Stop()

	after := polls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, polls.Load(), "no polls after Stop")

	p.Stop() // second Stop is a no-op
}

func Test_Poller_SkipsWhileOutstanding(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var polls atomic.Int32
	p := msgsync.StartPoller(context.Background(), 2*time.Millisecond, func(ctx context.Context) {
		polls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	require.Eventually(t, func() bool { return p.Skipped() >= 5 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 1, polls.Load(), "a stalled poll must not be overlapped")

	close(release)
	require.Eventually(t, func() bool { return polls.Load() >= 2 }, time.Second, time.Millisecond)
	p.Stop()
}

func Test_Poller_StopCancelsOutstandingPoll(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once sync.Once
	var cancelled atomic.Bool
	p := msgsync.StartPoller(context.Background(), 2*time.Millisecond, func(ctx context.Context) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled.Store(true)
	})

	<-started
	p.Stop()
	assert.True(t, cancelled.Load(), "Stop must wait for the outstanding poll")
}

func Test_Poller_CancelFromPoll(t *testing.T) {
	t.Parallel()

	var polls atomic.Int32
	var p *msgsync.Poller
	ready := make(chan struct{})
	p = msgsync.StartPoller(context.Background(), 2*time.Millisecond, func(ctx context.Context) {
		<-ready
		polls.Add(1)
		p.Cancel()
	})
	close(ready)

	require.Eventually(t, func() bool { return polls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, polls.Load(), "no ticks after Cancel")
	p.Stop()
}

func Test_Poller_ReadsCursorAtFireTime(t *testing.T) {
	t.Parallel()

	log := msgsync.NewLog()
	log.Merge(msgsync.Message{ID: "1", CreatedAt: time.Unix(1, 0)})

	var mu sync.Mutex
	var cursors []string
	next := 2
	p := msgsync.StartPoller(context.Background(), 2*time.Millisecond, func(ctx context.Context) {
		cursor := log.LastID()
		mu.Lock()
		cursors = append(cursors, cursor)
		mu.Unlock()
		// Simulate a poll that found one newer message.
		id := string(rune('0' + next))
		log.Merge(msgsync.Message{ID: id, CreatedAt: time.Unix(int64(next), 0)})
		next++
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cursors) >= 3
	}, time.Second, time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"1", "2", "3"}, cursors[:3])
}
