package jsonrpc

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// ProtocolVersion is reported by Hello and Version.
const ProtocolVersion = "1.0"

// DefaultAuthenticationTimeout bounds one off-loop user or token
// operation.
const DefaultAuthenticationTimeout = 10 * time.Second

// Authenticator manages users and tokens. *auth.Manager satisfies it.
// Every method except HasUsers may block on the database.
type Authenticator interface {
	HasUsers() bool
	CreateUser(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password, deviceName string) (string, error)
	Tokens(ctx context.Context, username string) ([]auth.TokenInfo, error)
	RemoveToken(ctx context.Context, username, tokenID string) error
}

// ServerInfo identifies the hub in Hello and Version replies.
type ServerInfo struct {
	Name    string
	UUID    string
	Version string
	Locale  string
}

// JSONRPCOptions configures the JSONRPC namespace.
type JSONRPCOptions struct {
	Server ServerInfo
	// Auth backs the user and token methods. Nil leaves them out.
	Auth        Authenticator
	AuthTimeout time.Duration
}

type jsonrpcHandlers struct {
	d    *Dispatcher
	opts JSONRPCOptions
}

// NewJSONRPCNamespace builds the protocol namespace: handshake,
// introspection, notification subscriptions and user management.
func NewJSONRPCNamespace(d *Dispatcher, opts JSONRPCOptions) *Namespace {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthenticationTimeout
	}
	h := &jsonrpcHandlers{d: d, opts: opts}

	methods := map[string]*Method{
		"Hello": {
			Description: "Initiates the connection. Required as the first call when the handshake is enabled.",
			Params:      object(nil, map[string]any{"locale": typed("string")}),
			Handler:     h.hello,
		},
		"Introspect": {
			Description: "Lists every method and notification with its params schema.",
			Handler:     h.introspect,
		},
		"Version": {
			Description: "Returns the server and protocol versions.",
			Handler:     h.version,
		},
		"SetNotificationStatus": {
			Description: "Selects the namespaces whose notifications this client receives. " +
				"The legacy enabled flag subscribes to all or none.",
			Params: object(nil, map[string]any{
				"namespaces": map[string]any{"type": "array", "items": typed("string")},
				"enabled":    typed("boolean"),
			}),
			Handler: h.setNotificationStatus,
		},
		"KeepAlive": {
			Description: "Keeps the session alive.",
			Params:      object(nil, map[string]any{"sessionId": typed("string")}),
			Handler:     h.keepAlive,
		},
	}
	if opts.Auth != nil {
		methods["CreateUser"] = &Method{
			Description: "Creates a user. Only callable without a token while no user exists.",
			Params: object([]string{"username", "password"}, map[string]any{
				"username": typed("string"),
				"password": typed("string"),
			}),
			Handler: h.createUser,
		}
		methods["Authenticate"] = &Method{
			Description: "Exchanges credentials for a token.",
			Params: object([]string{"username", "password", "deviceName"}, map[string]any{
				"username":   typed("string"),
				"password":   typed("string"),
				"deviceName": typed("string"),
			}),
			Returns: object(nil, map[string]any{"success": typed("boolean"), "token": typed("string")}),
			Handler: h.authenticate,
		}
		methods["Tokens"] = &Method{
			Description: "Lists the tokens of the calling user.",
			Handler:     h.tokens,
		}
		methods["RemoveToken"] = &Method{
			Description: "Revokes one of the calling user's tokens.",
			Params:      object([]string{"tokenId"}, map[string]any{"tokenId": uuidString()}),
			Handler:     h.removeToken,
		}
	}

	return &Namespace{Name: "JSONRPC", Methods: methods}
}

func (h *jsonrpcHandlers) hello(call *Call, params map[string]any) Reply {
	sess := call.Session
	sess.HelloDone = true
	if locale, ok := params["locale"].(string); ok && locale != "" {
		sess.Locale = locale
	}
	h.d.handshakeDone(call.ClientID)

	locale := sess.Locale
	if locale == "" {
		locale = h.opts.Server.Locale
	}
	initialSetup := false
	if h.opts.Auth != nil {
		initialSetup = !h.opts.Auth.HasUsers()
	}
	return Success(map[string]any{
		"server":                 "gray-logic-hub",
		"name":                   h.opts.Server.Name,
		"uuid":                   h.opts.Server.UUID,
		"version":                h.opts.Server.Version,
		"protocolVersion":        ProtocolVersion,
		"locale":                 locale,
		"initialSetupRequired":   initialSetup,
		"authenticationRequired": h.d.registry.AuthenticationRequired(),
	})
}

func (h *jsonrpcHandlers) introspect(_ *Call, _ map[string]any) Reply {
	methods := map[string]any{}
	notifications := map[string]any{}
	for _, nsName := range h.d.Namespaces() {
		ns := h.d.namespaces[nsName]
		for name, m := range ns.Methods {
			entry := map[string]any{"description": m.Description}
			if m.Params != nil {
				entry["params"] = m.Params
			}
			if m.Returns != nil {
				entry["returns"] = m.Returns
			}
			methods[nsName+"."+name] = entry
		}
		for name, doc := range ns.Notifications {
			notifications[nsName+"."+name] = map[string]any{"params": doc}
		}
	}
	return Success(map[string]any{"methods": methods, "notifications": notifications})
}

func (h *jsonrpcHandlers) version(_ *Call, _ map[string]any) Reply {
	return Success(map[string]any{
		"version":         h.opts.Server.Version,
		"protocolVersion": ProtocolVersion,
	})
}

// notifying returns the registered namespaces that emit notifications.
func (h *jsonrpcHandlers) notifying() []string {
	var out []string
	for _, name := range h.d.Namespaces() {
		if len(h.d.namespaces[name].Notifications) > 0 {
			out = append(out, name)
		}
	}
	return out
}

func (h *jsonrpcHandlers) setNotificationStatus(call *Call, params map[string]any) Reply {
	var namespaces []string
	switch {
	case params["namespaces"] != nil:
		known := map[string]bool{}
		for _, name := range h.notifying() {
			known[name] = true
		}
		for _, v := range params["namespaces"].([]any) {
			name, _ := v.(string)
			if !known[name] {
				return Fail(KindInvalidParams)
			}
			namespaces = append(namespaces, name)
		}
	case params["enabled"] != nil:
		if params["enabled"].(bool) {
			namespaces = h.notifying()
		}
	default:
		return Fail(KindInvalidParams)
	}

	if err := h.d.registry.SetNotificationNamespaces(call.ClientID, namespaces); err != nil {
		return Failure(err)
	}
	current := call.Session.Namespaces()
	return Success(map[string]any{
		"namespaces": current,
		"enabled":    len(current) > 0,
	})
}

func (h *jsonrpcHandlers) keepAlive(call *Call, params map[string]any) Reply {
	id, _ := params["sessionId"].(string)
	if id == "" {
		id = call.ClientID
	}
	return Success(map[string]any{"success": true, "sessionId": id})
}

// offLoop runs work on its own goroutine and defers the reply until it
// finishes. The result is resolved back on the event loop.
func (h *jsonrpcHandlers) offLoop(call *Call, work func(ctx context.Context) (map[string]any, error)) Reply {
	opID := h.d.ops.Begin(pending.Authentication, call.ClientID, call.ID, h.opts.AuthTimeout)
	timeout := h.opts.AuthTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		params, err := work(ctx)
		h.d.loop.Post(func() {
			h.d.ops.Resolve(opID, pending.Result{Params: params, Err: err})
		})
	}()
	return Deferred(opID)
}

func (h *jsonrpcHandlers) createUser(call *Call, params map[string]any) Reply {
	username, _ := params["username"].(string)
	password, _ := params["password"].(string)
	return h.offLoop(call, func(ctx context.Context) (map[string]any, error) {
		if err := h.opts.Auth.CreateUser(ctx, username, password); err != nil {
			return nil, err
		}
		h.d.logger.Info("user created", "username", username)
		return map[string]any{"success": true}, nil
	})
}

func (h *jsonrpcHandlers) authenticate(call *Call, params map[string]any) Reply {
	username, _ := params["username"].(string)
	password, _ := params["password"].(string)
	device, _ := params["deviceName"].(string)
	return h.offLoop(call, func(ctx context.Context) (map[string]any, error) {
		token, err := h.opts.Auth.Authenticate(ctx, username, password, device)
		if err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "token": token}, nil
	})
}

func (h *jsonrpcHandlers) tokens(call *Call, _ map[string]any) Reply {
	username := call.Session.Username()
	if username == "" {
		return Fail(KindUnauthorized)
	}
	return h.offLoop(call, func(ctx context.Context) (map[string]any, error) {
		list, err := h.opts.Auth.Tokens(ctx, username)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []auth.TokenInfo{}
		}
		return map[string]any{"tokenInfoList": list}, nil
	})
}

func (h *jsonrpcHandlers) removeToken(call *Call, params map[string]any) Reply {
	username := call.Session.Username()
	if username == "" {
		return Fail(KindUnauthorized)
	}
	tokenID, _ := params["tokenId"].(string)
	return h.offLoop(call, func(ctx context.Context) (map[string]any, error) {
		if err := h.opts.Auth.RemoveToken(ctx, username, tokenID); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	})
}
