package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusinfo/internal/config"
	"campusinfo/internal/crawler"
	"campusinfo/internal/storage"
)

func TestRunStateSingleSlot(t *testing.T) {
	var s RunState
	require.True(t, s.TryStart(Full))
	assert.True(t, s.IsRunning())
	assert.False(t, s.TryStart(Demo))

	kind, _, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, Full, kind)

	_, ok = s.LastRun()
	assert.False(t, ok)

	s.Done(RunInfo{Kind: Full, Stats: crawler.Stats{Stored: 4}})
	assert.False(t, s.IsRunning())
	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, 4, last.Stats.Stored)
	assert.True(t, s.TryStart(Demo))
}

func TestRunStateConcurrentTryStart(t *testing.T) {
	var s RunState
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryStart(Full) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestTriggerRejectsSecondStart(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	trigger := NewTrigger(context.Background(), func(ctx context.Context, kind Kind) (crawler.Stats, error) {
		atomic.AddInt32(&runs, 1)
		<-release
		return crawler.Stats{Stored: 1}, nil
	}, nil)

	require.NoError(t, trigger.Start(Full))
	require.ErrorIs(t, trigger.Start(Full), ErrAlreadyRunning)
	require.ErrorIs(t, trigger.Start(Demo), ErrAlreadyRunning)

	close(release)
	trigger.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
	assert.False(t, trigger.State().IsRunning())

	last, ok := trigger.State().LastRun()
	require.True(t, ok)
	assert.Equal(t, Full, last.Kind)
	assert.Empty(t, last.Error)

	require.NoError(t, trigger.Start(Demo))
	trigger.Wait()
}

func TestTriggerRecordsFailure(t *testing.T) {
	trigger := NewTrigger(context.Background(), func(ctx context.Context, kind Kind) (crawler.Stats, error) {
		return crawler.Stats{}, errors.New("store offline")
	}, nil)

	require.NoError(t, trigger.Start(Demo))
	trigger.Wait()
	last, ok := trigger.State().LastRun()
	require.True(t, ok)
	assert.Equal(t, "store offline", last.Error)
	assert.False(t, trigger.State().IsRunning())
}

func TestTriggerRecoversPanic(t *testing.T) {
	trigger := NewTrigger(context.Background(), func(ctx context.Context, kind Kind) (crawler.Stats, error) {
		panic("boom")
	}, nil)

	require.NoError(t, trigger.Start(Full))
	trigger.Wait()
	assert.False(t, trigger.State().IsRunning())
	last, _ := trigger.State().LastRun()
	assert.Equal(t, "panic", last.Error)
}

func TestCrawlerRunUsesDemoCap(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`<html><body><a href="/1">1</a><a href="/2">2</a><a href="/3">3</a></body></html>`))
	}))
	defer srv.Close()

	store := storage.NewMemory()
	cfg := config.Crawl{SeedURL: srv.URL + "/", MaxDepth: 2, DemoPages: 2, FetchTimeout: 5 * time.Second}
	run := CrawlerRun(cfg, store, crawler.WithHTTPClient(srv.Client()))

	stats, err := run(context.Background(), Demo)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Visited)
	assert.Len(t, store.All(), 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestCronSpec(t *testing.T) {
	cases := map[string]string{
		"3h":    "0 */3 * * *",
		"3JAM":  "0 */3 * * *",
		" 6h ":  "0 */6 * * *",
		"6jam":  "0 */6 * * *",
		"24h":   "0 0 * * *",
		"24jam": "0 0 * * *",
	}
	for in, want := range cases {
		got, err := CronSpec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := CronSpec("12h")
	require.Error(t, err)
}

func TestCronTickSkipsWhenBusy(t *testing.T) {
	release := make(chan struct{})
	var runs int32
	trigger := NewTrigger(context.Background(), func(ctx context.Context, kind Kind) (crawler.Stats, error) {
		atomic.AddInt32(&runs, 1)
		assert.Equal(t, Full, kind)
		<-release
		return crawler.Stats{}, nil
	}, nil)

	c, err := NewCron(trigger, "6jam", nil)
	require.NoError(t, err)
	assert.Equal(t, "0 */6 * * *", c.Spec())

	c.tick()
	c.tick()
	close(release)
	trigger.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))

	c.tick()
	trigger.Wait()
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
}

func TestNewCronRejectsUnknownInterval(t *testing.T) {
	_, err := NewCron(NewTrigger(context.Background(), nil, nil), "weekly", nil)
	require.Error(t, err)
}
