package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/nerrad567/gray-logic-hub/internal/session"
)

// Call is one accepted request while its handler runs.
type Call struct {
	ID       int
	ClientID string
	Method   string
	Token    string
	Received time.Time

	// Session is the caller's session. Handlers may update it.
	Session *session.Session
}

// Reply is what a handler returns: success params, an error, or the id
// of a pending operation that will produce one of those later.
type Reply struct {
	Params      map[string]any
	Err         error
	OperationID string
}

// Success replies with params.
func Success(params map[string]any) Reply { return Reply{Params: params} }

// Failure replies with err. Its wire kind comes from *Error,
// integrations.ThingError or a known sentinel.
func Failure(err error) Reply { return Reply{Err: err} }

// Fail replies with a protocol error kind.
func Fail(kind string) Reply { return Reply{Err: &Error{Kind: kind}} }

// Deferred replies once the pending operation resolves.
func Deferred(operationID string) Reply { return Reply{OperationID: operationID} }

// HandlerFunc serves one method. It runs on the event loop and must not
// block.
type HandlerFunc func(call *Call, params map[string]any) Reply

// Method describes one callable method.
type Method struct {
	Description string
	// Params is a JSON schema for the params object. Nil accepts any object.
	Params map[string]any
	// Returns documents the success params for Introspect.
	Returns map[string]any

	Handler HandlerFunc

	schema *jsonschema.Schema
}

// Namespace groups methods and the notifications they may emit.
type Namespace struct {
	Name    string
	Methods map[string]*Method
	// Notifications maps signal names to their params documentation.
	Notifications map[string]map[string]any
}

// compile prepares every method's params schema.
func (ns *Namespace) compile() error {
	for name, m := range ns.Methods {
		if m.Handler == nil {
			return fmt.Errorf("jsonrpc: %s.%s has no handler", ns.Name, name)
		}
		if m.Params == nil {
			continue
		}
		raw, err := json.Marshal(m.Params)
		if err != nil {
			return fmt.Errorf("jsonrpc: encoding %s.%s schema: %w", ns.Name, name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("jsonrpc: loading %s.%s schema: %w", ns.Name, name, err)
		}
		url := "mem://jsonrpc/" + ns.Name + "/" + name + ".json"
		c := jsonschema.NewCompiler()
		if err := c.AddResource(url, doc); err != nil {
			return fmt.Errorf("jsonrpc: adding %s.%s schema: %w", ns.Name, name, err)
		}
		compiled, err := c.Compile(url)
		if err != nil {
			return fmt.Errorf("jsonrpc: compiling %s.%s schema: %w", ns.Name, name, err)
		}
		m.schema = compiled
	}
	return nil
}

// validate checks params against the method schema.
func (m *Method) validate(params map[string]any) error {
	if m.schema == nil {
		return nil
	}
	return m.schema.Validate(params)
}

// Schema helpers used by the namespace definitions.

func object(required []string, props map[string]any) map[string]any {
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func typed(t string) map[string]any { return map[string]any{"type": t} }

func uuidString() map[string]any {
	return map[string]any{"type": "string", "minLength": 1}
}

func paramList() map[string]any {
	return map[string]any{
		"type": "array",
		"items": object([]string{"paramTypeId", "value"}, map[string]any{
			"paramTypeId": typed("string"),
			"value":       map[string]any{},
		}),
	}
}
