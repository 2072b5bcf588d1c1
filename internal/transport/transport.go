// Package transport provides the HTTP transport used to fetch remote store
// catalogs.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Some storefront CDNs rate-limit clients whose TLS handshake does not look
// like a browser. ChromeTransport presents Chrome's ClientHello through uTLS,
// lets ALPN pick the protocol, and uses x/net/http2 framing when the server
// chooses h2. Plain http:// URLs bypass uTLS entirely.

// errNotH2 is returned by the h2 dialer when ALPN settled on HTTP/1.1.
var errNotH2 = errors.New("server did not negotiate h2")

// Options configures a ChromeTransport.
type Options struct {
	// Timeout bounds connection setup (dial plus handshake).
	Timeout time.Duration

	// RootCAs overrides the system roots. Nil uses the system pool.
	RootCAs *x509.CertPool
}

// ChromeTransport is an http.RoundTripper with a Chrome TLS fingerprint.
type ChromeTransport struct {
	dialer  *net.Dialer
	rootCAs *x509.CertPool
	h2      *http2.Transport
	h1      *http.Transport
}

// NewChromeTransport creates a ChromeTransport.
func NewChromeTransport(opts Options) *ChromeTransport {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	t := &ChromeTransport{
		dialer:  &net.Dialer{Timeout: opts.Timeout},
		rootCAs: opts.RootCAs,
	}

	t.h2 = &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			conn, proto, err := t.dialChromeTLS(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if proto != http2.NextProtoTLS {
				conn.Close()
				return nil, errNotH2
			}
			return conn, nil
		},
	}

	t.h1 = &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: t.dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, _, err := t.dialChromeTLS(ctx, network, addr)
			return conn, err
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return t
}

// RoundTrip implements http.RoundTripper.
// HTTPS requests try HTTP/2 first and fall back to HTTP/1.1 only when the
// server declined h2 during ALPN; other h2 errors are returned as is.
func (t *ChromeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}

	resp, err := t.h2.RoundTrip(req)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, errNotH2) {
		return nil, err
	}
	return t.h1.RoundTrip(req)
}

// CloseIdleConnections closes idle connections in both transports.
func (t *ChromeTransport) CloseIdleConnections() {
	t.h2.CloseIdleConnections()
	t.h1.CloseIdleConnections()
}

// dialChromeTLS establishes a TLS connection with Chrome's fingerprint and
// reports the ALPN protocol the server selected.
func (t *ChromeTransport) dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, string, error) {
	// Extract hostname for SNI
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := t.dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, "", fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
		RootCAs:    t.rootCAs,
	}, utls.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, "", fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, tlsConn.ConnectionState().NegotiatedProtocol, nil
}

// Verify ChromeTransport implements http.RoundTripper at compile time.
var _ http.RoundTripper = (*ChromeTransport)(nil)
