package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/amtoaer/bili-sync-sub000/internal/bilibili"
	"github.com/amtoaer/bili-sync-sub000/internal/config"
	"github.com/amtoaer/bili-sync-sub000/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRunner struct {
	cycles  chan struct{}
	release chan struct{}
	err     error
}

func (f *fakeRunner) RunCycle(ctx context.Context) error {
	if f.cycles != nil {
		f.cycles <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func testClient(t *testing.T) *bilibili.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"message":"0","data":{"wbi_img":{
			"img_url":"https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png",
			"sub_url":"https://i0.hdslb.com/bfs/wbi/4932caff0ff746eab6f01bf08b70ac45.png"}}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return bilibili.New(nil, bilibili.RateLimit{},
		bilibili.WithBaseURL(srv.URL), bilibili.WithHTTPClient(srv.Client()))
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), store.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTriggerNowRunsACycle(t *testing.T) {
	cfg := config.Default()
	cfg.Trigger = config.Trigger{IntervalSec: 3600}
	runner := &fakeRunner{cycles: make(chan struct{}, 1)}
	s := New(runner, testClient(t), testStore(t), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.TriggerNow())
	select {
	case <-runner.cycles:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never fired")
	}
	waitFor(t, func() bool { return !s.Status().Running && !s.Status().LastFinish.IsZero() })

	snap := s.Status()
	assert.NotEmpty(t, snap.LastRunID)
	assert.False(t, snap.LastStart.IsZero())
	assert.Empty(t, snap.LastError)
	assert.True(t, snap.NextRun.After(snap.LastStart))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTriggerNowRejectedWhileRunning(t *testing.T) {
	cfg := config.Default()
	cfg.Trigger = config.Trigger{IntervalSec: 3600}
	runner := &fakeRunner{cycles: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(runner, testClient(t), testStore(t), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.TriggerNow())
	<-runner.cycles
	waitFor(t, func() bool { return s.Status().Running })

	assert.False(t, s.TriggerNow())

	close(runner.release)
	waitFor(t, func() bool { return !s.Status().Running })
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCredentialRefreshAttemptedOncePerDay(t *testing.T) {
	var refreshHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/nav", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"message":"0","data":{"wbi_img":{
			"img_url":"https://i0.hdslb.com/bfs/wbi/aa.png","sub_url":"https://i0.hdslb.com/bfs/wbi/bb.png"}}}`)
	})
	mux.HandleFunc("/x/passport-login/web/cookie/info", func(w http.ResponseWriter, r *http.Request) {
		refreshHits.Add(1)
		fmt.Fprint(w, `{"code":-1,"message":"error"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := bilibili.New(&bilibili.Credential{SessData: "s", BiliJct: "jct", DedeUserID: "1"},
		bilibili.RateLimit{}, bilibili.WithBaseURL(srv.URL), bilibili.WithHTTPClient(srv.Client()))

	cfg := config.Default()
	cfg.Trigger = config.Trigger{IntervalSec: 3600}
	runner := &fakeRunner{cycles: make(chan struct{}, 1)}
	s := New(runner, client, testStore(t), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		prev := s.Status().LastFinish
		require.True(t, s.TriggerNow())
		<-runner.cycles
		waitFor(t, func() bool {
			snap := s.Status()
			return !snap.Running && snap.LastFinish.After(prev)
		})
	}

	// the failed attempt is not retried within the same day
	assert.Equal(t, int32(1), refreshHits.Load())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReloadPicksUpStoredTrigger(t *testing.T) {
	st := testStore(t)
	cfg := config.Default()
	cfg.Trigger = config.Trigger{IntervalSec: 3600}
	s := New(&fakeRunner{}, testClient(t), st, cfg)

	edited := config.Default()
	edited.Trigger = config.Trigger{IntervalSec: 60}
	payload, err := json.Marshal(edited)
	require.NoError(t, err)
	_, err = st.SaveConfig(context.Background(), string(payload))
	require.NoError(t, err)

	s.reload(context.Background())
	assert.EqualValues(t, 60, s.cfg.Trigger.IntervalSec)

	// same version again is a no-op
	s.reload(context.Background())
	assert.EqualValues(t, 60, s.cfg.Trigger.IntervalSec)
}

func TestCycleErrorSurfacesInStatus(t *testing.T) {
	cfg := config.Default()
	cfg.Trigger = config.Trigger{IntervalSec: 3600}
	runner := &fakeRunner{cycles: make(chan struct{}, 1), err: errors.New("boom")}
	s := New(runner, testClient(t), testStore(t), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.True(t, s.TriggerNow())
	<-runner.cycles
	waitFor(t, func() bool { return s.Status().LastError != "" })
	assert.Equal(t, "boom", s.Status().LastError)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
