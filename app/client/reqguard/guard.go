// Package reqguard bounds every outstanding HTTP exchange so that a silent
// hang surfaces as a network error instead of blocking a flow forever.
package reqguard

import (
	"context"
	"fmt"
	"io"
	"k4llisto/app/client/netmon"
	"k4llisto/pkg/sched"
	"net/http"
	"sync"
	"time"

	"github.com/samber/do"
)

const DefaultTimeout = 15 * time.Second

// Guard wraps an http.Client. Each request gets its own single-shot timer;
// whichever of completion and timeout comes first wins, the loser is a no-op.
type Guard struct {
	client  *http.Client
	monitor *netmon.Monitor
	clock   sched.Clock
	timeout time.Duration
}

func New(di *do.Injector) (*Guard, error) {
	return NewWithOptions(&http.Client{}, do.MustInvoke[*netmon.Monitor](di), sched.Real(), DefaultTimeout), nil
}

func NewWithOptions(client *http.Client, monitor *netmon.Monitor, clock sched.Clock, timeout time.Duration) *Guard {
	return &Guard{
		client:  client,
		monitor: monitor,
		clock:   clock,
		timeout: timeout,
	}
}

type pendingRequest struct {
	mu       sync.Mutex
	done     bool
	timedOut bool
	abort    context.CancelFunc
}

// onTimeout aborts the request unless it already completed.
func (p *pendingRequest) onTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done {
		return
	}

	p.timedOut = true
	p.abort()
}

// complete reports whether the request finished before the timeout fired.
func (p *pendingRequest) complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = true
	return !p.timedOut
}

// Do executes the request under the guard's timeout and classifies the
// outcome. A fired timeout is reported to the connectivity monitor as a
// NetworkError; the aborted request's own completion does not double-report.
// On success the request context stays alive until the caller closes the
// body: the body read is governed by the same context as the headers.
func (g *Guard) Do(req *http.Request) (*http.Response, netmon.Classification, error) {
	ctx, cancel := context.WithCancel(req.Context())

	pending := &pendingRequest{abort: cancel}
	stopTimer := g.clock.AfterFunc(g.timeout, pending.onTimeout)

	resp, err := g.client.Do(req.WithContext(ctx))

	stopTimer()
	if !pending.complete() {
		if resp != nil {
			_ = resp.Body.Close()
		}
		cancel()

		g.monitor.Classify(nil, context.DeadlineExceeded)
		return nil, netmon.NetworkError, fmt.Errorf("request timed out after %s", g.timeout)
	}

	if err != nil {
		cancel()
		return nil, g.monitor.Classify(nil, err), err
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, g.monitor.Classify(resp, nil), nil
}

// cancelOnClose releases the request context when the caller is done with
// the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
