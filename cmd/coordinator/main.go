// Command coordinator loads a dataset, waits for worker agents, sorts the
// dataset across them and writes the sorted output and a timing report.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dreamware/distsort/internal/config"
	"github.com/dreamware/distsort/internal/coordinator"
	"github.com/dreamware/distsort/internal/dataset"
	"github.com/dreamware/distsort/internal/storage"
	"github.com/dreamware/distsort/internal/trust"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	configPath := flag.String("config", getenv("DISTSORT_CONFIG", ""), "path to a YAML config file")
	workers := flag.Int("workers", 0, "number of workers to wait for (overrides config)")
	flag.Parse()

	cfg, err := config.LoadCoordinator(*configPath)
	if err != nil {
		logFatal("config: %v", err)
		return
	}
	if *workers > 0 {
		cfg.ExpectedWorkers = *workers
	}

	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		logFatal("log file: %v", err)
		return
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		logFatal("%v", err)
	}
	log.Println("coordinator stopped")
}

// run loads the inputs, binds the listening socket and performs one sort.
// Failing to load the dataset, open the trust store or bind the socket is
// fatal; anything that goes wrong with workers is not.
func run(ctx context.Context, cfg config.CoordinatorConfig, in io.Reader, out io.Writer) error {
	values, err := dataset.Load(cfg.DatasetPath)
	if err != nil {
		return fmt.Errorf("dataset not found at %s: %w", cfg.DatasetPath, err)
	}
	log.Printf("loaded dataset with %d elements", len(values))

	store, err := storage.Open(cfg.Trust.Backend, cfg.Trust.Path)
	if err != nil {
		return fmt.Errorf("trust store: %w", err)
	}
	defer store.Close()

	mgr, err := trust.NewManager(store, cfg.Trust.Bounds())
	if err != nil {
		return fmt.Errorf("trust store: %w", err)
	}

	expected := cfg.ExpectedWorkers
	if expected == 0 {
		if expected, err = promptWorkers(in, out); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()
	log.Printf("server listening on %s", ln.Addr())

	_, err = execute(ctx, cfg, ln, mgr, values, expected)
	return err
}

// execute runs the sort on an open listener and writes the outputs. An
// empty result is logged and leaves the output files untouched.
func execute(ctx context.Context, cfg config.CoordinatorConfig, ln net.Listener, mgr *trust.Manager,
	values []float64, expected int) (*coordinator.Result, error) {
	identify, err := cfg.Identify()
	if err != nil {
		return nil, err
	}
	c, err := coordinator.New(ln, mgr, coordinator.Config{
		Identify:      identify,
		AcceptTimeout: cfg.AcceptTimeout,
		AcceptPoll:    cfg.AcceptPoll,
		IOTimeout:     cfg.IOTimeout,
		ResultTimeout: cfg.ResultTimeout,
		MaxFrameSize:  cfg.MaxFrameSize,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("run %s: waiting for %d workers...", c.RunID(), expected)

	res, err := c.Run(ctx, values, expected)
	for addr, d := range c.Tracker().All() {
		log.Printf("worker %s: %s, %d values in %v", addr, d.Status, d.Elements, d.Elapsed().Round(time.Millisecond))
	}
	logScores(mgr)
	if errors.Is(err, coordinator.ErrEmptyResultSet) {
		log.Printf("warning: no data sorted, %s not written", cfg.OutputPath)
		return res, nil
	}
	if err != nil {
		return res, err
	}

	if err := dataset.WriteSorted(cfg.OutputPath, res.Sorted); err != nil {
		return res, err
	}
	log.Printf("sorted data saved to %s", cfg.OutputPath)

	s := res.Summary
	timing := dataset.Timing{Start: s.Start, End: s.End, Elements: s.Elements, Workers: s.Workers}
	if err := dataset.WriteTiming(cfg.TimingPath, timing); err != nil {
		return res, err
	}
	log.Printf("timing saved to %s (%d elements, %d workers, %.2f seconds)",
		cfg.TimingPath, s.Elements, s.Workers, s.Elapsed.Seconds())
	return res, nil
}

func logScores(mgr *trust.Manager) {
	scores, err := mgr.All()
	if err != nil {
		log.Printf("warning: reading trust scores: %v", err)
		return
	}
	b := mgr.Config()
	log.Printf("trust scores (range %d-%d): %v", b.Floor, b.Ceiling, scores)
}

// promptWorkers asks the operator for the number of workers.
func promptWorkers(in io.Reader, out io.Writer) (int, error) {
	fmt.Fprint(out, "How many workers to connect? ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read worker count: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid worker count %q", strings.TrimSpace(line))
	}
	return n, nil
}

// setupLogging mirrors the log into path when it is set. The returned
// function closes the file.
func setupLogging(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
