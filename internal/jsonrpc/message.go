package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Request is one decoded client call.
type Request struct {
	ID     int
	Method string
	Params map[string]any
	Token  string
}

type rawRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Token  string          `json:"token"`
}

var (
	errMalformed    = errors.New("jsonrpc: malformed request")
	errMissingID    = errors.New("jsonrpc: missing integer id")
	errParamsObject = errors.New("jsonrpc: params is not an object")
)

// decodeRequest parses frame. Errors mean the call id could not be
// recovered, except errParamsObject, which comes with a valid Request.ID.
func decodeRequest(frame []byte) (Request, error) {
	var raw rawRequest
	if err := json.Unmarshal(frame, &raw); err != nil {
		return Request{}, errMalformed
	}
	id, err := strconv.Atoi(string(bytes.TrimSpace(raw.ID)))
	if err != nil {
		return Request{}, errMissingID
	}

	req := Request{ID: id, Method: raw.Method, Token: raw.Token, Params: map[string]any{}}
	params := bytes.TrimSpace(raw.Params)
	if len(params) == 0 || string(params) == "null" {
		return req, nil
	}
	if err := json.Unmarshal(params, &req.Params); err != nil {
		return req, errParamsObject
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	return req, nil
}

// splitMethod splits "Namespace.Method".
func splitMethod(method string) (namespace, name string, ok bool) {
	namespace, name, ok = strings.Cut(method, ".")
	if !ok || namespace == "" || name == "" || strings.Contains(name, ".") {
		return "", "", false
	}
	return namespace, name, true
}

type successResponse struct {
	ID     int            `json:"id"`
	Status string         `json:"status"`
	Params map[string]any `json:"params"`
}

type errorResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type notification struct {
	Notification string         `json:"notification"`
	Params       map[string]any `json:"params"`
}

func encodeSuccess(id int, params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(successResponse{ID: id, Status: "success", Params: params})
}

func encodeError(id int, kind string) []byte {
	// Cannot fail: every field is a string or int.
	data, _ := json.Marshal(errorResponse{ID: id, Status: "error", Error: kind}) //nolint:errcheck // see above
	return data
}

func encodeNotification(name string, params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(notification{Notification: name, Params: params})
}
