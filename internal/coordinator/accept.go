// Package coordinator implements the coordinator side of a distributed sort.
// This file implements the accept phase.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dreamware/distsort/internal/cluster"
)

// deadlineListener is implemented by *net.TCPListener and *net.UnixListener.
type deadlineListener interface {
	SetDeadline(t time.Time) error
}

// AcceptWorkers accepts connections until expected workers have connected,
// the accept timeout elapses or ctx is done. Each connection is registered
// in its own goroutine: the identity gets a default trust entry if it has
// none and the worker joins the connected set.
//
// Whatever subset connected is returned. When it is smaller than expected
// the error wraps ErrAcceptTimeout and the run may continue. Errors from a
// single Accept are logged and accepting continues; only a closed listener
// stops the loop with a different error.
func (c *Coordinator) AcceptWorkers(ctx context.Context, expected int) ([]*cluster.WorkerConn, error) {
	c.setState(StateAccepting)

	deadline := time.Now().Add(c.cfg.AcceptTimeout)
	dl, canDeadline := c.listener.(deadlineListener)
	if canDeadline {
		defer dl.SetDeadline(time.Time{})
	}

	var registering sync.WaitGroup
	accepted := 0
	var stopErr error

	for accepted < expected {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		if canDeadline {
			next := now.Add(c.cfg.AcceptPoll)
			if next.After(deadline) {
				next = deadline
			}
			_ = dl.SetDeadline(next)
		}

		conn, err := c.listener.Accept()
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				logf("waiting for more workers... (%d/%d)", accepted, expected)
			case errors.Is(err, net.ErrClosed):
				stopErr = fmt.Errorf("accept: %w", err)
			default:
				logf("error accepting connection: %v", err)
			}
			if stopErr != nil {
				break
			}
			continue
		}

		accepted++
		registering.Add(1)
		go func(conn net.Conn) {
			defer registering.Done()
			c.register(conn)
		}(conn)
	}

	registering.Wait()
	if n := c.workers.Len(); n < accepted {
		logf("warning: %d duplicate connections dropped", accepted-n)
	}
	workers := c.workers.Snapshot()
	logf("connected identities: %v", c.workers.Identities())

	if stopErr != nil {
		return workers, stopErr
	}
	if len(workers) < expected {
		logf("warning: timeout waiting for workers. only %d of %d connected", len(workers), expected)
		return workers, fmt.Errorf("%w: %d of %d connected", ErrAcceptTimeout, len(workers), expected)
	}
	return workers, nil
}

// register records a freshly accepted connection.
func (c *Coordinator) register(conn net.Conn) {
	w := cluster.NewWorkerConn(conn, c.cfg.Identify)
	logf("worker %s connected (identity %s)", w.Addr, w.Identity)

	if err := c.trust.Initialize(w.Identity); err != nil {
		logf("warning: trust init for %s failed: %v", w.Identity, err)
	}
	if !c.workers.Add(w) {
		logf("warning: duplicate connection from %s closed", w.Addr)
		_ = w.Close()
	}
}
