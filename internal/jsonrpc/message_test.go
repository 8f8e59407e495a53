package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest([]byte(`{"id":4,"method":"Integrations.GetThings","params":{"thingId":"t1"},"token":"abc"}`))
	if err != nil {
		t.Fatalf("decodeRequest() error = %v", err)
	}
	if req.ID != 4 || req.Method != "Integrations.GetThings" || req.Token != "abc" || req.Params["thingId"] != "t1" {
		t.Errorf("decodeRequest() = %+v", req)
	}

	req, err = decodeRequest([]byte(`{"id":5,"method":"JSONRPC.Version","params":null}`))
	if err != nil || req.Params == nil || len(req.Params) != 0 {
		t.Errorf("null params: req = %+v, err = %v", req, err)
	}

	req, err = decodeRequest([]byte(`{"id":6,"method":"JSONRPC.Version","params":"x"}`))
	if !errors.Is(err, errParamsObject) || req.ID != 6 {
		t.Errorf("string params: req = %+v, err = %v", req, err)
	}

	for _, frame := range []string{`[]`, `{"id":1.5}`, `{"id":null}`, `not json`} {
		if _, err := decodeRequest([]byte(frame)); err == nil || errors.Is(err, errParamsObject) {
			t.Errorf("decodeRequest(%s) error = %v", frame, err)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in       string
		ns, name string
		ok       bool
	}{
		{"Integrations.AddThing", "Integrations", "AddThing", true},
		{"AddThing", "", "", false},
		{".AddThing", "", "", false},
		{"Integrations.", "", "", false},
		{"A.B.C", "", "", false},
	}
	for _, tt := range tests {
		ns, name, ok := splitMethod(tt.in)
		if ns != tt.ns || name != tt.name || ok != tt.ok {
			t.Errorf("splitMethod(%q) = %q, %q, %v", tt.in, ns, name, ok)
		}
	}
}

func TestEncodeResponses(t *testing.T) {
	data, err := encodeSuccess(3, nil)
	if err != nil {
		t.Fatalf("encodeSuccess() error = %v", err)
	}
	if string(data) != `{"id":3,"status":"success","params":{}}` {
		t.Errorf("encodeSuccess() = %s", data)
	}
	if got := string(encodeError(-1, KindInvalidRequest)); got != `{"id":-1,"status":"error","error":"InvalidRequest"}` {
		t.Errorf("encodeError() = %s", got)
	}

	data, err = encodeNotification("Integrations.ThingRemoved", map[string]any{"thingId": "t1"})
	if err != nil {
		t.Fatalf("encodeNotification() error = %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, hasID := m["id"]; hasID || m["notification"] != "Integrations.ThingRemoved" {
		t.Errorf("encodeNotification() = %s", data)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&Error{Kind: KindRateLimited}, KindRateLimited},
		{integrations.ErrActionTypeNotFound, "ActionTypeNotFound"},
		{fmt.Errorf("wrapped: %w", integrations.ErrSetupFailed), "SetupFailed"},
		{pending.ErrTimeout, "HardwareFailure"},
		{auth.ErrInvalidCredentials, KindUnauthorized},
		{auth.ErrUsernameExists, KindDuplicateUser},
		{auth.ErrTokenNotFound, KindTokenNotFound},
		{errors.New("disk on fire"), KindInternalError},
	}
	for _, tt := range tests {
		if got := kindOf(tt.err); got != tt.want {
			t.Errorf("kindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
