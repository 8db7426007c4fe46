// Command worker connects to the coordinator, sorts the chunk it receives
// and sends it back. It handles one chunk and exits.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dreamware/distsort/internal/config"
	"github.com/dreamware/distsort/internal/worker"
)

// defaultHost is used when the operator leaves the server prompt empty.
const defaultHost = "127.0.0.1"

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	configPath := flag.String("config", getenv("DISTSORT_CONFIG", ""), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.LoadWorker(*configPath)
	if err != nil {
		logFatal("config: %v", err)
		return
	}

	closeLog, err := setupLogging(cfg.LogFile)
	if err != nil {
		logFatal("log file: %v", err)
		return
	}
	defer closeLog()

	if cfg.ServerHost == "" {
		cfg.ServerHost = promptHost(os.Stdin, os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logFatal("%v", err)
	}
}

// run performs one worker cycle against the configured coordinator.
func run(ctx context.Context, cfg config.WorkerConfig) error {
	agent, err := worker.New(agentConfig(cfg))
	if err != nil {
		return err
	}
	report, err := agent.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("sorted %d values after %d attempt(s)", report.Received, report.Attempts)
	return nil
}

func agentConfig(cfg config.WorkerConfig) worker.Config {
	wc := worker.DefaultConfig(cfg.Addr())
	wc.IOTimeout = cfg.IOTimeout
	wc.BackoffStep = cfg.RetryBackoff
	wc.MaxAttempts = cfg.MaxRetries
	wc.MaxIdleTimeouts = cfg.MaxIdleTimeouts
	wc.MaxFrameSize = cfg.MaxFrameSize
	wc.ProofDir = cfg.ProofDir
	return wc
}

// promptHost asks for the coordinator's address, falling back to
// defaultHost on an empty answer.
func promptHost(in io.Reader, out io.Writer) string {
	fmt.Fprint(out, "Enter server IP address: ")
	line, _ := bufio.NewReader(in).ReadString('\n')
	if host := strings.TrimSpace(line); host != "" {
		return host
	}
	return defaultHost
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
