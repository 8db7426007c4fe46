package integration

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/dreamware/distsort/internal/cluster"
	"github.com/dreamware/distsort/internal/coordinator"
	"github.com/dreamware/distsort/internal/storage"
	"github.com/dreamware/distsort/internal/trust"
	"github.com/dreamware/distsort/internal/worker"
)

// TestSystem is a coordinator and its worker agents running in-process
// over loopback TCP.
type TestSystem struct {
	t        *testing.T
	listener net.Listener
	store    storage.Store
	trust    *trust.Manager
	proofDir string

	wg      sync.WaitGroup
	mu      sync.Mutex
	reports []*worker.Report
	errs    []error
}

// NewTestSystem opens a trust store of the given backend under a temp dir
// and binds a loopback listener.
func NewTestSystem(t *testing.T, backend string) *TestSystem {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.Open(backend, filepath.Join(dir, "trust"))
	require.NoError(t, err)
	mgr, err := trust.NewManager(store, trust.DefaultConfig())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts := &TestSystem{t: t, listener: ln, store: store, trust: mgr, proofDir: filepath.Join(dir, "proofs")}
	t.Cleanup(ts.Stop)
	return ts
}

// Stop closes the listener, waits for agents and closes the store.
func (ts *TestSystem) Stop() {
	ts.listener.Close()
	ts.wg.Wait()
	ts.store.Close()
}

func (ts *TestSystem) agentConfig(name string) worker.Config {
	cfg := worker.DefaultConfig(ts.listener.Addr().String())
	cfg.IOTimeout = 5 * time.Second
	cfg.BackoffStep = 20 * time.Millisecond
	cfg.MaxAttempts = 5
	cfg.ProofDir = ts.proofDir
	cfg.Hostname = name
	return cfg
}

// StartAgents launches n worker agents in the background.
func (ts *TestSystem) StartAgents(n int) {
	for i := 0; i < n; i++ {
		agent, err := worker.New(ts.agentConfig(fmt.Sprintf("agent%d", i)))
		require.NoError(ts.t, err)

		ts.wg.Add(1)
		go func() {
			defer ts.wg.Done()
			report, err := agent.Run(context.Background())
			ts.mu.Lock()
			defer ts.mu.Unlock()
			ts.reports = append(ts.reports, report)
			if err != nil {
				ts.errs = append(ts.errs, err)
			}
		}()
	}
}

// StartVanishing connects a raw client that takes its chunk and hangs up.
func (ts *TestSystem) StartVanishing() string {
	conn, err := net.Dial("tcp", ts.listener.Addr().String())
	require.NoError(ts.t, err)

	ts.wg.Add(1)
	go func() {
		defer ts.wg.Done()
		defer conn.Close()
		_, _ = cluster.ReceiveChunk(conn, 0, nil)
	}()
	return conn.LocalAddr().String()
}

// Sort runs the coordinator once.
func (ts *TestSystem) Sort(dataset []float64, expected int, identify cluster.IdentityFunc) (*coordinator.Result, error) {
	cfg := coordinator.DefaultConfig()
	cfg.Identify = identify
	cfg.AcceptTimeout = 5 * time.Second
	cfg.AcceptPoll = 100 * time.Millisecond
	cfg.IOTimeout = 5 * time.Second
	cfg.ResultTimeout = 5 * time.Second

	c, err := coordinator.New(ts.listener, ts.trust, cfg)
	require.NoError(ts.t, err)
	return c.Run(context.Background(), dataset, expected)
}

// Wait blocks until every agent finished and returns their errors.
func (ts *TestSystem) Wait() []error {
	ts.wg.Wait()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]error(nil), ts.errs...)
}

func randomDataset(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Float64()*2000 - 1000
	}
	return out
}

func TestDistributedSort(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	for _, backend := range []string{storage.BackendJSON, storage.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			ts := NewTestSystem(t, backend)
			ts.StartAgents(4)

			data := randomDataset(10000, 42)
			res, err := ts.Sort(data, 4, cluster.AddrIdentity)
			require.NoError(t, err)
			assert.Empty(t, ts.Wait())

			want := slices.Clone(data)
			slices.Sort(want)
			assert.Equal(t, want, res.Sorted)
			assert.Equal(t, 4, res.Summary.Workers)
			assert.Equal(t, 4, res.Summary.Succeeded)
			assert.Equal(t, 0, res.Summary.LostElements)

			scores, err := ts.trust.All()
			require.NoError(t, err)
			assert.Len(t, scores, 4)
			for id, s := range scores {
				assert.Equal(t, 2, s, "score of %s", id)
			}

			// Every agent left a received and a sorted proof file
			entries, err := os.ReadDir(ts.proofDir)
			require.NoError(t, err)
			assert.Len(t, entries, 8)
		})
	}
}

func TestTrustPersistsAcrossRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ts := NewTestSystem(t, storage.BackendLevelDB)
	data := randomDataset(500, 7)

	want := []int{2, 3, 3}
	for run, score := range want {
		ts.StartAgents(1)
		res, err := ts.Sort(data, 1, cluster.HostIdentity)
		require.NoError(t, err, "run %d", run)
		require.Empty(t, ts.Wait())
		assert.Len(t, res.Sorted, len(data))

		got, err := ts.trust.Get("127.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, score, got, "run %d", run)
	}
}

func TestWorkerFailureDropsChunk(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ts := NewTestSystem(t, storage.BackendJSON)
	ts.StartAgents(2)
	lost := ts.StartVanishing()

	data := randomDataset(3000, 99)
	res, err := ts.Sort(data, 3, cluster.AddrIdentity)
	require.NoError(t, err)
	assert.Empty(t, ts.Wait())

	assert.Equal(t, 1, res.Summary.Failed)
	assert.Equal(t, 2, res.Summary.Succeeded)
	assert.Equal(t, len(data), len(res.Sorted)+res.Summary.LostElements)
	assert.True(t, slices.IsSorted(res.Sorted))

	score, err := ts.trust.Get(lost)
	require.NoError(t, err)
	assert.Equal(t, 1, score)
}

func TestAgentsStartBeforeCoordinator(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ts := NewTestSystem(t, storage.BackendMemory)
	addr := ts.listener.Addr().String()
	require.NoError(t, ts.listener.Close())

	// Agents hit a closed port first and retry
	ts.StartAgents(2)
	time.Sleep(50 * time.Millisecond)

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	ts.listener = ln

	res, err := ts.Sort([]float64{5, 1, 4, 2}, 2, cluster.AddrIdentity)
	require.NoError(t, err)
	assert.Empty(t, ts.Wait())
	assert.Equal(t, []float64{1, 2, 4, 5}, res.Sorted)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	attempts := 0
	for _, r := range ts.reports {
		attempts += r.Attempts
	}
	assert.Greater(t, attempts, 2)
}
