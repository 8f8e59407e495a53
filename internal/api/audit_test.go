package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/audit"
)

type fakeAudit struct {
	got audit.Filter
	err error
}

func (f *fakeAudit) Create(context.Context, *audit.AuditLog) error { return nil }

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.got = filter
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{
		Logs:  []audit.AuditLog{{ID: "aud-1", Action: audit.ActionAdded, EntityType: audit.EntityThing, EntityID: "t1"}},
		Total: 1,
		Limit: 10,
	}, nil
}

func TestListAuditLogs(t *testing.T) {
	repo := &fakeAudit{}
	srv := newTestServer(t, Deps{Audit: repo})

	resp, body := get(t, srv.URL+"/api/v1/audit?entity_id=t1&action=added&since=2026-03-01T09:00:00Z&limit=10&offset=bogus")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if repo.got.EntityID != "t1" || repo.got.Action != "added" || repo.got.Limit != 10 || repo.got.Offset != 0 ||
		!repo.got.Since.Equal(since) {
		t.Errorf("filter = %+v", repo.got)
	}
	var res audit.ListResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || len(res.Logs) != 1 || res.Logs[0].EntityID != "t1" {
		t.Errorf("result = %+v", res)
	}
}

func TestListAuditLogs_Errors(t *testing.T) {
	tests := []struct {
		name string
		repo audit.Repository
		want int
	}{
		{"not configured", nil, http.StatusServiceUnavailable},
		{"bad since", &fakeAudit{}, http.StatusBadRequest},
		{"repository fails", &fakeAudit{err: errors.New("disk I/O error")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Audit: tt.repo})
			url := srv.URL + "/api/v1/audit"
			if tt.name == "bad since" {
				url += "?since=yesterday"
			}
			resp, body := get(t, url)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.want, body)
			}
		})
	}
}
