package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stayops/ota-bridge/internal/model"
)

func validEndpointReq() endpointReq {
	return endpointReq{
		Name:   "pms sync",
		URL:    "https://pms.example.com/hooks",
		Events: []string{"booking.created", "payment.*"},
	}
}

func TestToEndpointDefaults(t *testing.T) {
	req := validEndpointReq()
	e, err := req.toEndpoint(7)
	if err != nil {
		t.Fatalf("toEndpoint: %v", err)
	}
	if e.TenantID != 7 {
		t.Errorf("tenant id = %d, want 7", e.TenantID)
	}
	if !e.IsActive {
		t.Errorf("new endpoint should default to active")
	}
	if e.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", e.Method)
	}
	if e.Timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", e.Timeout)
	}
	if e.ContentType != "application/json" {
		t.Errorf("content type = %s", e.ContentType)
	}
	def := model.DefaultRetryPolicy()
	if e.Retry.MaxRetries != def.MaxRetries || e.Retry.InitialDelay != def.InitialDelay {
		t.Errorf("retry = %+v, want defaults %+v", e.Retry, def)
	}
}

func TestToEndpointValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(r *endpointReq)
		wantErr string
	}{
		{"empty name", func(r *endpointReq) { r.Name = "  " }, "name is required"},
		{"bad scheme", func(r *endpointReq) { r.URL = "ftp://example.com" }, "http(s)"},
		{"no host", func(r *endpointReq) { r.URL = "https://" }, "http(s)"},
		{"no events", func(r *endpointReq) { r.Events = nil }, "at least one event"},
		{"unknown event", func(r *endpointReq) { r.Events = []string{"booking.exploded"} }, "unknown event type"},
		{"bare family", func(r *endpointReq) { r.Events = []string{"booking"} }, "unknown event type"},
		{"bad method", func(r *endpointReq) { r.Method = "DELETE" }, "POST or PUT"},
		{"timeout too small", func(r *endpointReq) { r.TimeoutSecs = -5 }, "between 1 and 300"},
		{"timeout too large", func(r *endpointReq) { r.TimeoutSecs = 301 }, "between 1 and 300"},
		{
			"too many retries",
			func(r *endpointReq) { r.Retry = &model.RetryPolicy{MaxRetries: 11, BackoffMultiplier: 2} },
			"max_retries",
		},
		{
			"bad multiplier",
			func(r *endpointReq) { r.Retry = &model.RetryPolicy{MaxRetries: 3, BackoffMultiplier: 0.5} },
			"backoff_multiplier",
		},
		{
			"unknown retry class",
			func(r *endpointReq) {
				r.Retry = &model.RetryPolicy{MaxRetries: 3, BackoffMultiplier: 2, RetryOn: []string{"dns_error"}}
			},
			"retry_on",
		},
		{
			"filter without field",
			func(r *endpointReq) {
				r.Filter = &model.EndpointFilter{Enabled: true, Conditions: []model.FilterCondition{{Operator: "equals"}}}
			},
			"field is required",
		},
		{
			"unknown filter operator",
			func(r *endpointReq) {
				r.Filter = &model.EndpointFilter{Enabled: true, Conditions: []model.FilterCondition{{Field: "status", Operator: "matches"}}}
			},
			"unknown filter operator",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validEndpointReq()
			tc.mutate(&req)
			_, err := req.toEndpoint(7)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestToEndpointNormalizesMethod(t *testing.T) {
	req := validEndpointReq()
	req.Method = " put "
	e, err := req.toEndpoint(7)
	if err != nil {
		t.Fatalf("toEndpoint: %v", err)
	}
	if e.Method != http.MethodPut {
		t.Errorf("method = %s, want PUT", e.Method)
	}
}
