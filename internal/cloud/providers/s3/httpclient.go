package s3

import (
	nethttp "net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
)

// sdkHTTPClient rebuilds the shared client as an SDK BuildableClient with the
// same transport settings. LoadDefaultConfig can only add an AWS_CA_BUNDLE to
// a BuildableClient and fails on a plain *http.Client.
//
// A client whose transport is not an *http.Transport (the NTLM negotiator)
// is passed through unchanged; AWS_CA_BUNDLE is then unsupported.
func sdkHTTPClient(c *nethttp.Client) aws.HTTPClient {
	base, ok := c.Transport.(*nethttp.Transport)
	if c.Transport == nil {
		base, ok = nethttp.DefaultTransport.(*nethttp.Transport)
	}
	if !ok {
		return c
	}

	return awshttp.NewBuildableClient().
		WithTimeout(c.Timeout).
		WithTransportOptions(func(tr *nethttp.Transport) {
			tr.Proxy = base.Proxy
			tr.DialContext = base.DialContext
			if base.TLSClientConfig != nil {
				tr.TLSClientConfig = base.TLSClientConfig.Clone()
			}
			tr.TLSHandshakeTimeout = base.TLSHandshakeTimeout
			tr.MaxIdleConns = base.MaxIdleConns
			tr.MaxIdleConnsPerHost = base.MaxIdleConnsPerHost
			tr.IdleConnTimeout = base.IdleConnTimeout
			tr.ExpectContinueTimeout = base.ExpectContinueTimeout
			tr.ResponseHeaderTimeout = base.ResponseHeaderTimeout
			tr.ForceAttemptHTTP2 = base.ForceAttemptHTTP2
		})
}
