package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/models"
)

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "   ", "localhost:8080", "://x"} {
		if _, err := NewClient(u, Options{}); err == nil {
			t.Errorf("NewClient(%q) should fail", u)
		}
	}
	if _, err := NewClient("http://localhost:8080/", Options{}); err != nil {
		t.Errorf("NewClient with valid URL failed: %v", err)
	}
}

func TestGenerateTemporaryTableCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != constants.APIPathPrefix+"/temporary-table-credentials" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req models.GenerateTemporaryTableCredential
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad body: %v", err)
		}
		if req.TableID != "t-1" || req.Operation != "READ" {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"azure_user_delegation_sas":{"sas_token":"sv=1&sig=x"},"expiration_time":99}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, Options{})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.GenerateTemporaryTableCredential(context.Background(), "t-1", "READ")
	if err != nil {
		t.Fatalf("GenerateTemporaryTableCredential failed: %v", err)
	}
	if resp.AzureUserDelegationSAS == nil || resp.AzureUserDelegationSAS.SASToken != "sv=1&sig=x" || resp.ExpirationTime != 99 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGenerateTemporaryVolumeCredential_ErrorBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code":"NOT_FOUND","message":"Volume not found: v-9"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, Options{})
	_, err := c.GenerateTemporaryVolumeCredential(context.Background(), "v-9", "READ_VOLUME")
	if !IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if !strings.Contains(err.Error(), "Volume not found: v-9") {
		t.Errorf("error = %v", err)
	}
	if StatusOf(err) != http.StatusNotFound {
		t.Errorf("StatusOf = %d", StatusOf(err))
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("4xx must not be retried, got %d calls", n)
	}
}

func TestPreconditionFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":"FAILED_PRECONDITION","message":"Table storage location not found."}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, Options{})
	_, err := c.GenerateTemporaryTableCredential(context.Background(), "t", "")
	if !IsPreconditionFailed(err) || IsNotFound(err) {
		t.Errorf("expected precondition failure, got %v", err)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"gcp_oauth_token":{"oauth_token":"ya29"},"expiration_time":1}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, Options{RetryMax: 2})
	resp, err := c.GenerateTemporaryTableCredential(context.Background(), "t", "")
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.GcpOauthToken.OauthToken != "ya29" {
		t.Errorf("unexpected response %+v", resp)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestRetryExhaustionReturnsLastResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error_code":"INTERNAL","message":"sts: AccessDenied"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, Options{RetryMax: 1})
	_, err := c.GenerateTemporaryTableCredential(context.Background(), "t", "")
	if StatusOf(err) != http.StatusInternalServerError || !strings.Contains(err.Error(), "AccessDenied") {
		t.Errorf("expected the final 500 body, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, Options{})
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}
