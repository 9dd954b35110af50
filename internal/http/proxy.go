// Package http builds the outbound HTTP client shared by every provider SDK.
package http

import (
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"golang.org/x/net/http/httpproxy"

	"github.com/rescale/credvend/internal/config"
	"github.com/rescale/credvend/internal/constants"
	"github.com/rescale/credvend/internal/logging"
)

// defaultProxyPort is used when proxy.port is unset.
const defaultProxyPort = 8080

// newTransport returns the base transport with proxy routing applied.
func newTransport(cfg config.ProxyConfig, logger *logging.Logger) (*nethttp.Transport, error) {
	transport := &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	switch strings.ToLower(cfg.Mode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = nethttp.ProxyFromEnvironment

	case "basic", "ntlm":
		// Incomplete proxy settings degrade to a direct connection
		if cfg.Host == "" {
			logger.Warn().Str("mode", cfg.Mode).Msg("proxy host is missing, connecting directly")
			transport.Proxy = nil
			break
		}
		if cfg.User != "" && cfg.Password == "" {
			logger.Warn().Str("user", cfg.User).Msg("proxy user configured without password, proxy auth disabled")
		}
		transport.Proxy = proxyFuncWithBypass(buildProxyURL(cfg), cfg.NoProxy, logger)

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.Mode)
	}

	return transport, nil
}

// proxyActive reports whether requests may leave through a proxy.
func proxyActive(cfg config.ProxyConfig) bool {
	switch strings.ToLower(cfg.Mode) {
	case "no-proxy", "":
		return false
	case "system":
		pc := httpproxy.FromEnvironment()
		return pc.HTTPProxy != "" || pc.HTTPSProxy != ""
	default:
		return cfg.Host != ""
	}
}

// buildProxyURL constructs the proxy URL. Basic credentials are embedded
// only when both user and password are set.
func buildProxyURL(cfg config.ProxyConfig) *url.URL {
	port := cfg.Port
	if port == 0 {
		port = defaultProxyPort
	}

	proxyURL := &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cfg.Host, fmt.Sprint(port)),
	}
	if cfg.User != "" && cfg.Password != "" {
		proxyURL.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return proxyURL
}

// proxyFuncWithBypass routes through proxyURL except for hosts matched by
// noProxy (hosts, domains, *.wildcards, CIDRs).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string, logger *logging.Logger) func(*nethttp.Request) (*url.URL, error) {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			logger.Debug().Str("host", req.URL.Host).Msg("proxy bypass")
		}
		return result, err
	}
}

// wrapNTLM adds NTLM proxy authentication on top of rt.
func wrapNTLM(rt nethttp.RoundTripper) nethttp.RoundTripper {
	return ntlmssp.Negotiator{RoundTripper: rt}
}
