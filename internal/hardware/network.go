package hardware

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultHTTPTimeout bounds each outbound request when no client is supplied.
	DefaultHTTPTimeout = 15 * time.Second

	// DefaultMaxConcurrent bounds in-flight requests across all plugins.
	DefaultMaxConcurrent = 8

	// maxResponseBody caps how much of a reply body is buffered.
	maxResponseBody = 4 << 20
)

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Reply is the handle for one outbound request. Its completion is
// delivered on the event loop through the OnFinished callback.
//
// Thread Safety:
//   - OnFinished may be called from any goroutine, before or after the
//     request completes. The callback always runs on the event loop.
type Reply struct {
	ID uint64

	loop Poster

	mu       sync.Mutex
	done     bool
	resp     *Response
	err      error
	callback func(*Response, error)
}

// OnFinished registers fn as the completion callback. A reply that has
// already finished delivers immediately (via the loop).
func (r *Reply) OnFinished(fn func(*Response, error)) {
	r.mu.Lock()
	if r.done {
		resp, err := r.resp, r.err
		r.mu.Unlock()
		r.loop.Post(func() { fn(resp, err) })
		return
	}
	r.callback = fn
	r.mu.Unlock()
}

func (r *Reply) finish(resp *Response, err error) {
	r.mu.Lock()
	r.done = true
	r.resp, r.err = resp, err
	fn := r.callback
	r.mu.Unlock()
	if fn != nil {
		r.loop.Post(func() { fn(resp, err) })
	}
}

type networkManager struct {
	loop   Poster
	client *http.Client
	sem    *semaphore.Weighted
	logger Logger

	nextID atomic.Uint64
	wg     sync.WaitGroup
}

func newNetworkManager(loop Poster, client *http.Client, timeout time.Duration, maxConcurrent int64, logger Logger) *networkManager {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &networkManager{
		loop:   loop,
		client: client,
		sem:    semaphore.NewWeighted(maxConcurrent),
		logger: logger,
	}
}

func (m *networkManager) do(ctx context.Context, pluginID string, req *http.Request) *Reply {
	reply := &Reply{ID: m.nextID.Add(1), loop: m.loop}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.sem.Acquire(ctx, 1); err != nil {
			reply.finish(nil, fmt.Errorf("hardware: waiting for network slot: %w", err))
			return
		}
		defer m.sem.Release(1)

		start := time.Now()
		resp, err := m.client.Do(req.WithContext(ctx))
		if err != nil {
			m.logger.Debug("plugin http request failed",
				"plugin", pluginID, "url", req.URL.Redacted(), "error", err)
			reply.finish(nil, err)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			reply.finish(nil, fmt.Errorf("hardware: reading response: %w", err))
			return
		}
		m.logger.Debug("plugin http request finished",
			"plugin", pluginID, "url", req.URL.Redacted(),
			"status", resp.StatusCode, "duration", time.Since(start))
		reply.finish(&Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil)
	}()
	return reply
}

func (m *networkManager) wait() {
	m.wg.Wait()
}

// NetworkClient issues HTTP requests on a plugin's behalf through the
// shared client.
type NetworkClient struct {
	manager  *networkManager
	pluginID string
}

// Do sends req asynchronously and returns its reply handle.
func (c *NetworkClient) Do(ctx context.Context, req *http.Request) *Reply {
	return c.manager.do(ctx, c.pluginID, req)
}

// Get is a convenience for a GET to url. A malformed url finishes the
// reply with the parse error.
func (c *NetworkClient) Get(ctx context.Context, url string) *Reply {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		reply := &Reply{ID: c.manager.nextID.Add(1), loop: c.manager.loop}
		reply.finish(nil, err)
		return reply
	}
	return c.manager.do(ctx, c.pluginID, req)
}

// Post sends body to url with the given content type.
func (c *NetworkClient) Post(ctx context.Context, url, contentType string, body []byte) *Reply {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		reply := &Reply{ID: c.manager.nextID.Add(1), loop: c.manager.loop}
		reply.finish(nil, err)
		return reply
	}
	req.Header.Set("Content-Type", contentType)
	return c.manager.do(ctx, c.pluginID, req)
}
