package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"
	"strings"

	"golang.org/x/net/http2"

	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/logging"
)

// NewClient creates the proxy-aware client shared by the AWS, Azure and GCP
// vendors. It is safe for concurrent use.
//
// HTTP/2 is attempted for direct connections and disabled behind a proxy,
// where multiplexed streams are commonly broken. CREDVEND_DISABLE_HTTP2=true
// forces HTTP/1.1 everywhere.
func NewClient(cfg config.ProxyConfig, logger *logging.Logger) (*nethttp.Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	tr, err := newTransport(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("CREDVEND_DISABLE_HTTP2") == "true" || proxyActive(cfg) {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	var rt nethttp.RoundTripper = tr
	if strings.EqualFold(cfg.Mode, "ntlm") && cfg.Host != "" {
		rt = wrapNTLM(tr)
	}

	logger.Debug().
		Str("proxy_mode", cfg.Mode).
		Bool("proxy_active", proxyActive(cfg)).
		Msg("outbound http client ready")

	return &nethttp.Client{
		Transport: rt,
		Timeout:   constants.HTTPClientTimeout,
	}, nil
}

// NeedsProxyPassword reports whether an authenticating proxy has a user but
// no password, so the CLI should prompt for one.
func NeedsProxyPassword(cfg config.ProxyConfig) bool {
	mode := strings.ToLower(cfg.Mode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.User != "" && cfg.Password == ""
}
