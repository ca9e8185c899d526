package upstream

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/leadbridge/leadbridge/internal/config"
	utls "github.com/refraction-networking/utls"
)

// UserAgent is sent on every outbound request that does not set its own.
var UserAgent = "leadbridge/dev"

// NewHTTPClient builds the client shared by the OAuth exchange, the CRM
// client and the lead source client.
func NewHTTPClient(cfg config.HTTPClientConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{base: newTransport(cfg.UTLS)},
	}
}

// headerTransport fills in default headers without overriding caller values.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" && req.Header.Get("Accept") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return t.base.RoundTrip(req)
}

func newTransport(useUTLS bool) http.RoundTripper {
	if !useUTLS {
		return &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
		}
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host := addr
			if strings.Contains(addr, ":") {
				host, _, _ = net.SplitHostPort(addr)
			}
			uconn, err := newUTLSConn(rawConn, host)
			if err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			if err := uconn.HandshakeContext(ctx); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			if proto := uconn.ConnectionState().NegotiatedProtocol; proto != "" && proto != "http/1.1" {
				_ = uconn.Close()
				return nil, fmt.Errorf("utls: server selected unsupported protocol %q", proto)
			}
			return uconn, nil
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// newUTLSConn wraps conn in a Chrome hello whose ALPN offers only
// http/1.1, since net/http cannot speak h2 over a utls conn. ALPS is
// dropped with h2.
func newUTLSConn(conn net.Conn, host string) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
	if err != nil {
		return nil, err
	}
	exts := spec.Extensions[:0]
	for _, ext := range spec.Extensions {
		switch e := ext.(type) {
		case *utls.ALPNExtension:
			e.AlpnProtocols = []string{"http/1.1"}
		case *utls.ApplicationSettingsExtension:
			continue
		}
		exts = append(exts, ext)
	}
	spec.Extensions = exts

	uconn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloCustom)
	if err := uconn.ApplyPreset(&spec); err != nil {
		return nil, err
	}
	return uconn, nil
}
