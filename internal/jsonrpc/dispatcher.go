package jsonrpc

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/pending"
	"github.com/nerrad567/gray-logic-hub/internal/session"
	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// DefaultHandshakeTimeout is how long a client may take to say Hello
// when the handshake is required.
const DefaultHandshakeTimeout = 10 * time.Second

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loop is where the dispatcher runs. *eventloop.Loop satisfies it.
type Loop interface {
	Post(fn func()) bool
	AfterFunc(d time.Duration, fn func()) *time.Timer
}

// Metrics receives dispatcher counters. *metrics.Metrics satisfies it.
type Metrics interface {
	ClientConnected(transport string)
	ClientDisconnected(transport string)
	RPCCompleted(method, status string, seconds float64)
	NotificationsSent(n int)
}

type noopMetrics struct{}

func (noopMetrics) ClientConnected(string)               {}
func (noopMetrics) ClientDisconnected(string)            {}
func (noopMetrics) RPCCompleted(string, string, float64) {}
func (noopMetrics) NotificationsSent(int)                {}

// Options configures a Dispatcher.
type Options struct {
	// RequireHello makes JSONRPC.Hello mandatory as the first call.
	RequireHello     bool
	HandshakeTimeout time.Duration

	Metrics Metrics
	Logger  Logger
}

// Dispatcher decodes client frames, routes calls to namespace handlers
// and writes responses and notifications back through the session
// registry.
//
// It implements transport.Handler. Transport callbacks are posted to the
// event loop; everything else runs there.
//
// Thread Safety:
//   - ClientConnected, DataAvailable and ClientDisconnected are safe from
//     any goroutine.
//   - Register must be called before transports start.
//   - Notify must be called on the event loop.
type Dispatcher struct {
	loop     Loop
	registry *session.Registry
	ops      *pending.Correlator
	opts     Options
	logger   Logger
	metrics  Metrics

	namespaces map[string]*Namespace
	handshakes map[string]*time.Timer
}

// New creates a Dispatcher over registry and ops.
func New(loop Loop, registry *session.Registry, ops *pending.Correlator, opts Options) *Dispatcher {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	m := opts.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &Dispatcher{
		loop:       loop,
		registry:   registry,
		ops:        ops,
		opts:       opts,
		logger:     logger,
		metrics:    m,
		namespaces: make(map[string]*Namespace),
		handshakes: make(map[string]*time.Timer),
	}
}

// Register adds a namespace and compiles its params schemas.
func (d *Dispatcher) Register(ns *Namespace) error {
	if _, exists := d.namespaces[ns.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNamespace, ns.Name)
	}
	if err := ns.compile(); err != nil {
		return err
	}
	d.namespaces[ns.Name] = ns
	return nil
}

// Namespaces returns the registered namespace names, sorted.
func (d *Dispatcher) Namespaces() []string {
	out := make([]string, 0, len(d.namespaces))
	for name := range d.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry returns the session registry the dispatcher writes through.
func (d *Dispatcher) Registry() *session.Registry { return d.registry }

// ClientConnected implements transport.Handler.
func (d *Dispatcher) ClientConnected(t transport.Transport, clientID string) {
	d.loop.Post(func() { d.clientConnected(t, clientID) })
}

// DataAvailable implements transport.Handler.
func (d *Dispatcher) DataAvailable(clientID string, frame []byte) {
	received := time.Now()
	d.loop.Post(func() { d.handleFrame(clientID, frame, received) })
}

// ClientDisconnected implements transport.Handler.
func (d *Dispatcher) ClientDisconnected(clientID string) {
	d.loop.Post(func() { d.clientDisconnected(clientID) })
}

func (d *Dispatcher) clientConnected(t transport.Transport, clientID string) {
	sess := d.registry.RegisterClient(t, clientID)
	d.metrics.ClientConnected(t.Name())
	d.logger.Info("client connected", "client_id", clientID, "transport", t.Name())

	if !d.opts.RequireHello {
		return
	}
	d.handshakes[clientID] = d.loop.AfterFunc(d.opts.HandshakeTimeout, func() {
		delete(d.handshakes, clientID)
		current, ok := d.registry.Get(clientID)
		if !ok || current != sess || current.HelloDone {
			return
		}
		d.logger.Warn("handshake timed out, terminating client", "client_id", clientID)
		d.registry.Terminate(clientID)
	})
}

func (d *Dispatcher) clientDisconnected(clientID string) {
	if timer, ok := d.handshakes[clientID]; ok {
		timer.Stop()
		delete(d.handshakes, clientID)
	}
	sess, ok := d.registry.Get(clientID)
	if !ok {
		return
	}
	d.registry.UnregisterClient(clientID)
	d.metrics.ClientDisconnected(sess.Transport.Name())
	d.logger.Info("client disconnected", "client_id", clientID)
}

// handshakeDone stops the client's handshake deadline.
func (d *Dispatcher) handshakeDone(clientID string) {
	if timer, ok := d.handshakes[clientID]; ok {
		timer.Stop()
		delete(d.handshakes, clientID)
	}
}

func (d *Dispatcher) handleFrame(clientID string, frame []byte, received time.Time) {
	sess, ok := d.registry.Get(clientID)
	if !ok {
		d.logger.Debug("frame from unknown client dropped", "client_id", clientID)
		return
	}

	req, err := decodeRequest(frame)
	switch {
	case errors.Is(err, errParamsObject):
		d.respondError(clientID, req.ID, req.Method, KindInvalidParams, received)
		return
	case err != nil:
		// Without a call id there is nothing to answer; report and drop
		// the connection.
		d.logger.Warn("invalid request, terminating client", "client_id", clientID, "error", err)
		d.respondError(clientID, -1, "", KindInvalidRequest, received)
		d.registry.Terminate(clientID)
		return
	}

	if d.opts.RequireHello && !sess.HelloDone && req.Method != "JSONRPC.Hello" {
		d.logger.Warn("call before handshake, terminating client", "client_id", clientID, "method", req.Method)
		d.respondError(clientID, req.ID, req.Method, KindHandshakeRequired, received)
		d.registry.Terminate(clientID)
		return
	}

	if !sess.Allow() {
		d.respondError(clientID, req.ID, req.Method, KindRateLimited, received)
		return
	}

	nsName, methodName, ok := splitMethod(req.Method)
	if !ok {
		d.respondError(clientID, req.ID, req.Method, KindInvalidMethod, received)
		return
	}
	ns, ok := d.namespaces[nsName]
	if !ok {
		d.respondError(clientID, req.ID, req.Method, KindNoSuchNamespace, received)
		return
	}
	method, ok := ns.Methods[methodName]
	if !ok {
		d.respondError(clientID, req.ID, req.Method, KindNoSuchMethod, received)
		return
	}

	if err := d.registry.Authorize(sess, req.Method, req.Token); err != nil {
		d.respondError(clientID, req.ID, req.Method, KindUnauthorized, received)
		return
	}

	if err := method.validate(req.Params); err != nil {
		d.logger.Debug("params rejected", "client_id", clientID, "method", req.Method, "error", err)
		d.respondError(clientID, req.ID, req.Method, KindInvalidParams, received)
		return
	}

	call := &Call{
		ID:       req.ID,
		ClientID: clientID,
		Method:   req.Method,
		Token:    req.Token,
		Received: received,
		Session:  sess,
	}
	reply := d.invoke(method, call, req.Params)
	if reply.OperationID == "" {
		d.respond(call, reply.Params, reply.Err)
		return
	}

	d.logger.Debug("call deferred", "client_id", clientID, "method", req.Method, "operation_id", reply.OperationID)
	registered := d.ops.OnResolve(reply.OperationID, func(res pending.Result) {
		d.loop.Post(func() { d.resume(call, res) })
	})
	if !registered {
		d.respondError(clientID, call.ID, call.Method, KindInternalError, received)
	}
}

// invoke runs the handler, turning a panic into an InternalError reply.
func (d *Dispatcher) invoke(m *Method, call *Call, params map[string]any) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "method", call.Method, "panic", r, "stack", string(debug.Stack()))
			reply = Fail(KindInternalError)
		}
	}()
	return m.Handler(call, params)
}

// resume delivers a deferred response. A client that left meanwhile
// gets nothing; the operation itself still completed.
func (d *Dispatcher) resume(call *Call, res pending.Result) {
	current, ok := d.registry.Get(call.ClientID)
	if !ok || current != call.Session {
		d.logger.Debug("deferred response dropped, client gone",
			"client_id", call.ClientID, "method", call.Method, "call_id", call.ID)
		return
	}
	d.respond(call, res.Params, res.Err)
}

// respond writes the final response for call.
func (d *Dispatcher) respond(call *Call, params map[string]any, err error) {
	if err != nil {
		d.respondError(call.ClientID, call.ID, call.Method, kindOf(err), call.Received)
		return
	}
	data, encErr := encodeSuccess(call.ID, params)
	if encErr != nil {
		d.logger.Error("encoding response failed", "method", call.Method, "error", encErr)
		d.respondError(call.ClientID, call.ID, call.Method, KindInternalError, call.Received)
		return
	}
	d.registry.Send(call.ClientID, data)
	d.metrics.RPCCompleted(call.Method, "success", time.Since(call.Received).Seconds())
}

func (d *Dispatcher) respondError(clientID string, id int, method, kind string, received time.Time) {
	d.registry.Send(clientID, encodeError(id, kind))
	if method == "" {
		method = "invalid"
	}
	d.metrics.RPCCompleted(method, "error", time.Since(received).Seconds())
}

// Notify pushes a notification to every session subscribed to its
// namespace. name is the full "Namespace.Signal" name.
func (d *Dispatcher) Notify(name string, params map[string]any) {
	ns, _, ok := splitMethod(name)
	if !ok {
		d.logger.Error("malformed notification name", "notification", name)
		return
	}
	clients := d.registry.Subscribers(ns)
	if len(clients) == 0 {
		return
	}
	data, err := encodeNotification(name, params)
	if err != nil {
		d.logger.Error("encoding notification failed", "notification", name, "error", err)
		return
	}
	d.registry.Broadcast(clients, data)
	d.metrics.NotificationsSent(len(clients))
}
