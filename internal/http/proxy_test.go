package http

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/logging"
)

func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:3128")

	tests := []struct {
		name    string
		noProxy string
		target  string
		direct  bool
	}{
		{"no bypass list", "", "https://sts.amazonaws.com/", false},
		{"wildcard match", "*.windows.net", "https://acct.blob.core.windows.net/", true},
		{"wildcard miss", "*.windows.net", "https://login.microsoftonline.com/", false},
		{"domain matches itself", "googleapis.com", "https://googleapis.com/", true},
		{"domain matches subdomain", "googleapis.com", "https://sts.googleapis.com/v1/token", true},
		{"cidr match", "10.0.0.0/8", "http://10.1.2.3:9000/", true},
		{"cidr miss", "10.0.0.0/8", "http://192.168.1.1/", false},
		{"list with spaces", "*.windows.net, 192.168.0.0/16, minio.internal", "http://minio.internal/", true},
		{"list miss", "*.windows.net, 192.168.0.0/16, minio.internal", "https://s3.eu-west-1.amazonaws.com/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxyFunc := proxyFuncWithBypass(proxyURL, tt.noProxy, logging.NewNopLogger())
			req, _ := http.NewRequest(http.MethodGet, tt.target, nil)
			got, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("proxyFunc: %v", err)
			}
			if tt.direct && got != nil {
				t.Errorf("%s: expected direct connection, got proxy %s", tt.target, got)
			}
			if !tt.direct && (got == nil || got.Host != "proxy.corp:3128") {
				t.Errorf("%s: expected proxy.corp:3128, got %v", tt.target, got)
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.ProxyConfig
		wantHost string
		wantUser string
	}{
		{"default port", config.ProxyConfig{Host: "proxy.corp"}, "proxy.corp:8080", ""},
		{"explicit port", config.ProxyConfig{Host: "proxy.corp", Port: 3128}, "proxy.corp:3128", ""},
		{"user without password", config.ProxyConfig{Host: "proxy.corp", User: "svc"}, "proxy.corp:8080", ""},
		{"user and password", config.ProxyConfig{Host: "proxy.corp", User: "svc", Password: "pw"}, "proxy.corp:8080", "svc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := buildProxyURL(tt.cfg)
			if u.Host != tt.wantHost {
				t.Errorf("Host = %s, want %s", u.Host, tt.wantHost)
			}
			if got := u.User.Username(); got != tt.wantUser {
				t.Errorf("User = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestProxyActive(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "")
	t.Setenv("HTTP_PROXY", "")
	t.Setenv("https_proxy", "")
	t.Setenv("http_proxy", "")

	if proxyActive(config.ProxyConfig{Mode: "no-proxy", Host: "proxy.corp"}) {
		t.Error("no-proxy mode reported active")
	}
	if proxyActive(config.ProxyConfig{Mode: "basic"}) {
		t.Error("basic mode without host reported active")
	}
	if !proxyActive(config.ProxyConfig{Mode: "ntlm", Host: "proxy.corp"}) {
		t.Error("ntlm mode with host reported inactive")
	}
	if proxyActive(config.ProxyConfig{Mode: "system"}) {
		t.Error("system mode without proxy env reported active")
	}
}
