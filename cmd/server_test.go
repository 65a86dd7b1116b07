package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"signal-radar/internal/config"
	"signal-radar/internal/engagement"
	"signal-radar/internal/model"
	"signal-radar/internal/scheduler"

	"github.com/sirupsen/logrus/hooks/test"
)

// 确保收到取消信号时会触发服务器优雅关闭。
func TestRunServer_ShutdownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := newStubCancelScheduler()
	srv := newStubServer()

	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, srv, sched, 500*time.Millisecond)
	}()

	srv.waitStarted(t)

	cancel()

	srv.waitShutdown(t)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("runServer did not return after cancel")
	}

	if sched.canceled.Load() == 0 {
		t.Fatalf("scheduler did not observe context cancellation")
	}
}

func TestRunServer_StopsSchedulerWhenServerFails(t *testing.T) {
	sched := newStubCancelScheduler()
	srv := &failingServer{err: errors.New("address in use")}

	err := runServer(context.Background(), srv, sched, 500*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "address in use") {
		t.Fatalf("expected listen error, got %v", err)
	}
	if sched.canceled.Load() == 0 {
		t.Fatalf("scheduler should be stopped when the server fails")
	}
}

func TestRunOnceManual(t *testing.T) {
	t.Parallel()

	stub := &stubScheduler{report: scheduler.Report{Due: 3, Scanned: 3, Signals: 2}}
	builds, cleanups := 0, 0

	report, err := runOnceManual(context.Background(), config.AppConfig{}, func(config.AppConfig) (appDeps, func(), error) {
		builds++
		return appDeps{sched: stub}, func() { cleanups++ }, nil
	})
	if err != nil {
		t.Fatalf("runOnceManual error: %v", err)
	}
	if report.Signals != 2 {
		t.Fatalf("expected signals=2, got %d", report.Signals)
	}
	if builds != 1 || cleanups != 1 {
		t.Fatalf("expected builder and cleanup called once, got %d/%d", builds, cleanups)
	}
	if stub.runOnceCalls != 1 {
		t.Fatalf("expected RunOnce called once, got %d", stub.runOnceCalls)
	}
}

func TestRunOnceManualBuilderError(t *testing.T) {
	t.Parallel()

	_, err := runOnceManual(context.Background(), config.AppConfig{}, func(config.AppConfig) (appDeps, func(), error) {
		return appDeps{}, func() {}, errors.New("build fail")
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestRunEngageWritesCSV(t *testing.T) {
	t.Parallel()

	logger, _ := test.NewNullLogger()
	eng := &stubEngage{leads: []model.Lead{{Name: "Ann", ReactionType: "Like, Comment"}}}
	var out bytes.Buffer

	err := runEngage(context.Background(), config.AppConfig{}, func(config.AppConfig) (appDeps, func(), error) {
		return appDeps{engage: eng, logger: logger}, func() {}, nil
	}, engagement.Request{PostURL: "https://linkedin.com/posts/1"}, &out)
	if err != nil {
		t.Fatalf("runEngage error: %v", err)
	}
	if eng.req.PostURL != "https://linkedin.com/posts/1" {
		t.Fatalf("request not forwarded: %+v", eng.req)
	}
	if !strings.Contains(out.String(), `Ann,,,,,0,0,,,,,"Like, Comment"`) {
		t.Fatalf("unexpected csv: %q", out.String())
	}
}

func TestDrainEngagementsIsBounded(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	eng := &stubEngage{block: true}

	start := time.Now()
	err := drainEngagements(eng, logger, 50*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("drain was not bounded by the timeout")
	}
	if eng.shutdowns != 1 || hook.LastEntry() == nil {
		t.Fatalf("expected one shutdown call and a warning")
	}

	if err := drainEngagements(&stubEngage{}, logger, time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- stubs ---

type stubServer struct {
	started        chan struct{}
	shutdownCalled chan struct{}
	closed         atomic.Bool
}

func newStubServer() *stubServer {
	return &stubServer{
		started:        make(chan struct{}),
		shutdownCalled: make(chan struct{}),
	}
}

func (s *stubServer) ListenAndServe() error {
	close(s.started)
	<-s.shutdownCalled
	return http.ErrServerClosed
}

func (s *stubServer) Shutdown(context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.shutdownCalled)
	return nil
}

func (s *stubServer) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-s.started:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
}

func (s *stubServer) waitShutdown(t *testing.T) {
	t.Helper()
	select {
	case <-s.shutdownCalled:
	case <-time.After(time.Second):
		t.Fatal("server shutdown was not called")
	}
}

type failingServer struct {
	err error
}

func (s *failingServer) ListenAndServe() error          { return s.err }
func (s *failingServer) Shutdown(context.Context) error { return nil }

type stubCancelScheduler struct {
	canceled atomic.Int32
}

func newStubCancelScheduler() *stubCancelScheduler {
	return &stubCancelScheduler{}
}

func (s *stubCancelScheduler) Start(ctx context.Context) error {
	<-ctx.Done()
	s.canceled.Add(1)
	return ctx.Err()
}

func (s *stubCancelScheduler) RunOnce(context.Context) (scheduler.Report, error) {
	return scheduler.Report{}, nil
}

type stubScheduler struct {
	report       scheduler.Report
	runOnceCalls int
}

func (s *stubScheduler) RunOnce(context.Context) (scheduler.Report, error) {
	s.runOnceCalls++
	return s.report, nil
}

func (s *stubScheduler) Start(context.Context) error {
	return nil
}

type stubEngage struct {
	req       engagement.Request
	leads     []model.Lead
	block     bool
	shutdowns int
}

func (s *stubEngage) Run(_ context.Context, req engagement.Request) (*model.EngagementScan, []model.Lead, error) {
	s.req = req
	return &model.EngagementScan{ID: "scan-1", Status: model.ScanCompleted}, s.leads, nil
}

func (s *stubEngage) Shutdown(ctx context.Context) error {
	s.shutdowns++
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}
