package http

import (
	"net/http"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
)

func TestNewClient_Modes(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.ProxyConfig
		wantProxy bool
		wantNTLM  bool
	}{
		{"default", config.ProxyConfig{}, false, false},
		{"no-proxy", config.ProxyConfig{Mode: "no-proxy"}, false, false},
		{"basic", config.ProxyConfig{Mode: "basic", Host: "proxy.corp", Port: 3128}, true, false},
		{"basic without host", config.ProxyConfig{Mode: "basic"}, false, false},
		{"ntlm", config.ProxyConfig{Mode: "NTLM", Host: "proxy.corp", User: "u", Password: "p"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg, nil)
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			if client.Timeout != constants.HTTPClientTimeout {
				t.Errorf("Timeout = %v", client.Timeout)
			}

			var tr *http.Transport
			switch rt := client.Transport.(type) {
			case *http.Transport:
				if tt.wantNTLM {
					t.Fatal("expected NTLM negotiator")
				}
				tr = rt
			case ntlmssp.Negotiator:
				if !tt.wantNTLM {
					t.Fatal("unexpected NTLM negotiator")
				}
				tr = rt.RoundTripper.(*http.Transport)
			default:
				t.Fatalf("unexpected transport %T", client.Transport)
			}

			if (tr.Proxy != nil) != tt.wantProxy {
				t.Errorf("proxy set = %v, want %v", tr.Proxy != nil, tt.wantProxy)
			}
			if tt.wantProxy && tr.ForceAttemptHTTP2 {
				t.Error("HTTP/2 should be disabled behind a proxy")
			}
		})
	}
}

func TestNewClient_ProxyURL(t *testing.T) {
	client, err := NewClient(config.ProxyConfig{Mode: "basic", Host: "proxy.corp", User: "alice", Password: "s3cret"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest("GET", "https://sts.amazonaws.com/", nil)
	u, err := client.Transport.(*http.Transport).Proxy(req)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "proxy.corp:8080" {
		t.Errorf("proxy host = %s, want default port", u.Host)
	}
	if pw, _ := u.User.Password(); u.User.Username() != "alice" || pw != "s3cret" {
		t.Errorf("proxy credentials = %v", u.User)
	}
}

func TestNewClient_UnsupportedMode(t *testing.T) {
	if _, err := NewClient(config.ProxyConfig{Mode: "socks"}, nil); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestNewClient_DisableHTTP2(t *testing.T) {
	t.Setenv("CREDVEND_DISABLE_HTTP2", "true")
	client, err := NewClient(config.ProxyConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	tr := client.Transport.(*http.Transport)
	if tr.ForceAttemptHTTP2 || len(tr.TLSNextProto) != 0 {
		t.Error("HTTP/2 should be disabled")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	tests := []struct {
		cfg  config.ProxyConfig
		want bool
	}{
		{config.ProxyConfig{Mode: "basic", User: "u"}, true},
		{config.ProxyConfig{Mode: "ntlm", User: "u"}, true},
		{config.ProxyConfig{Mode: "basic", User: "u", Password: "p"}, false},
		{config.ProxyConfig{Mode: "system", User: "u"}, false},
		{config.ProxyConfig{Mode: "basic"}, false},
	}
	for _, tt := range tests {
		if got := NeedsProxyPassword(tt.cfg); got != tt.want {
			t.Errorf("NeedsProxyPassword(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}
