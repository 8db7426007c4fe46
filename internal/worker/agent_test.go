package worker

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/distsort/internal/cluster"
	"github.com/dreamware/distsort/internal/dataset"
)

// recorder collects the delays the agent would sleep.
type recorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recorder) get() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// serveChunk plays the coordinator: send chunk, read back the result.
func serveChunk(chunk []float64, result chan<- []float64) func(net.Conn) {
	return func(conn net.Conn) {
		if err := cluster.SendChunk(conn, chunk); err != nil {
			return
		}
		sorted, err := cluster.ReceiveChunk(conn, 0, nil)
		if err != nil {
			return
		}
		result <- sorted
	}
}

// pipeDial returns a DialFunc backed by net.Pipe; serve runs on the
// coordinator end of each connection.
func pipeDial(serve func(net.Conn)) DialFunc {
	return func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			serve(server)
		}()
		return client, nil
	}
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func testConfig(rec *recorder) Config {
	cfg := DefaultConfig("coordinator:5000")
	cfg.IOTimeout = time.Second
	cfg.Hostname = "testhost"
	cfg.Sleep = rec.sleep
	return cfg
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig("h:1").Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no address", func(c *Config) { c.Addr = "" }},
		{"no attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"negative timeout", func(c *Config) { c.IOTimeout = -1 }},
		{"negative backoff", func(c *Config) { c.BackoffStep = -1 }},
		{"negative idle", func(c *Config) { c.MaxIdleTimeouts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("h:1")
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	result := make(chan []float64, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serveChunk([]float64{5, 1, 4, 2}, result)(conn)
	}()

	proofDir := t.TempDir()
	cfg := testConfig(&recorder{})
	cfg.Addr = ln.Addr().String()
	cfg.ProofDir = proofDir

	agent, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, agent.State())

	report, err := agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, agent.State())
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, 4, report.Received)

	select {
	case got := <-result:
		assert.Equal(t, []float64{1, 2, 4, 5}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator never got the sorted chunk")
	}

	// Proof files hold the chunk before and after sorting
	require.NotEmpty(t, report.ReceivedProof)
	assert.Equal(t, proofDir, filepath.Dir(report.ReceivedProof))
	received, err := dataset.Load(report.ReceivedProof)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 1, 4, 2}, received)

	sorted, err := dataset.Load(report.SortedProof)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4, 5}, sorted)
	assert.Contains(t, filepath.Base(report.SortedProof), "sorted_chunk_testhost_")
}

func TestRunRefusedBacksOffLinearly(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig(rec)
	dials := 0
	cfg.Dial = func(context.Context, string, string) (net.Conn, error) {
		dials++
		return nil, refusedErr()
	}

	agent, err := New(cfg)
	require.NoError(t, err)

	report, err := agent.Run(context.Background())
	assert.ErrorIs(t, err, cluster.ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.Equal(t, 3, dials)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, rec.get())
	assert.Equal(t, StateFailed, agent.State())
}

func TestRunRefusedOverTCP(t *testing.T) {
	// Grab a free port and release it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	rec := &recorder{}
	cfg := testConfig(rec)
	cfg.Addr = addr
	cfg.MaxAttempts = 2

	agent, err := New(cfg)
	require.NoError(t, err)

	_, err = agent.Run(context.Background())
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.get())
}

func TestRunOtherErrorsBackOffConstant(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig(rec)
	// Coordinator hangs up without sending anything
	cfg.Dial = pipeDial(func(net.Conn) {})

	agent, err := New(cfg)
	require.NoError(t, err)

	_, err = agent.Run(context.Background())
	assert.ErrorIs(t, err, cluster.ErrRetriesExhausted)
	assert.ErrorIs(t, err, cluster.ErrEndOfStream)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.get())
}

func TestRunSucceedsAfterRefusal(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig(rec)

	result := make(chan []float64, 1)
	serve := pipeDial(serveChunk([]float64{3, 3, 1}, result))
	attempt := 0
	cfg.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		attempt++
		if attempt == 1 {
			return nil, refusedErr()
		}
		return serve(ctx, network, addr)
	}

	agent, err := New(cfg)
	require.NoError(t, err)

	report, err := agent.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.get())
	assert.Equal(t, []float64{1, 3, 3}, <-result)
	assert.Empty(t, report.ReceivedProof)
}

func TestRunCanceledIsNotRetried(t *testing.T) {
	rec := &recorder{}
	cfg := testConfig(rec)
	dials := 0
	cfg.Dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
		dials++
		return nil, ctx.Err()
	}

	agent, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = agent.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, dials)
	assert.Empty(t, rec.get())
}

func TestReceiveChunkSurvivesTimeouts(t *testing.T) {
	cfg := testConfig(&recorder{})
	cfg.IOTimeout = 20 * time.Millisecond

	result := make(chan []float64, 1)
	cfg.Dial = pipeDial(func(conn net.Conn) {
		// Stay silent across several read deadlines
		time.Sleep(150 * time.Millisecond)
		serveChunk([]float64{2, 1}, result)(conn)
	})

	agent, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, agent.Connect(context.Background()))
	defer agent.Close()

	chunk, err := agent.ReceiveChunk()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, chunk)
}

func TestReceiveChunkIdleLimit(t *testing.T) {
	cfg := testConfig(&recorder{})
	cfg.IOTimeout = 10 * time.Millisecond
	cfg.MaxIdleTimeouts = 3

	release := make(chan struct{})
	defer close(release)
	cfg.Dial = pipeDial(func(net.Conn) { <-release })

	agent, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, agent.Connect(context.Background()))
	defer agent.Close()

	_, err = agent.ReceiveChunk()
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestOperationsNeedConnection(t *testing.T) {
	agent, err := New(testConfig(&recorder{}))
	require.NoError(t, err)

	_, err = agent.ReceiveChunk()
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, agent.SendResult([]float64{1}), ErrNotConnected)
	assert.NoError(t, agent.Close())
}

func TestSortLocally(t *testing.T) {
	agent, err := New(testConfig(&recorder{}))
	require.NoError(t, err)

	in := []float64{4, -1, 4, 0.5}
	out := agent.SortLocally(in)
	assert.Equal(t, []float64{-1, 0.5, 4, 4}, out)
	assert.Equal(t, []float64{4, -1, 4, 0.5}, in, "input is left untouched")
	assert.Equal(t, StateSorting, agent.State())

	assert.Empty(t, agent.SortLocally(nil))
}
