package gemini

import (
	"crypto/tls"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"earshot/log"
)

type tracedTransport struct {
	base http.RoundTripper
}

// NewTracedClient returns an HTTP client that logs connection timing for
// every model request.
func NewTracedClient() *http.Client {
	return &http.Client{
		Transport: &tracedTransport{
			base: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        4,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

func (t *tracedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var m log.RequestMetrics
	var dnsStart, tcpStart, tlsStart, wroteRequest time.Time

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			m.ConnReused = info.Reused
		},
		DNSStart:          func(_ httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(_ httptrace.DNSDoneInfo) { m.DNSTimeMs = msSince(dnsStart) },
		ConnectStart:      func(_, _ string) { tcpStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { m.ConnTimeMs = msSince(tcpStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone: func(st tls.ConnectionState, _ error) {
			m.TLSTimeMs = msSince(tlsStart)
			m.TLSProto = st.NegotiatedProtocol
		},
		WroteRequest:         func(_ httptrace.WroteRequestInfo) { wroteRequest = time.Now() },
		GotFirstResponseByte: func() { m.TTFBMs = msSince(wroteRequest) },
	}

	if req.ContentLength > 0 {
		m.RequestKB = float64(req.ContentLength) / 1024
	}
	traced := req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	start := time.Now()
	resp, err := t.base.RoundTrip(traced)
	m.TotalTimeMs = msSince(start)
	if err != nil {
		log.Warnf("model request %s failed: %v", modelFromPath(req.URL.Path), err)
		return nil, err
	}
	log.Request(modelFromPath(req.URL.Path), m)
	return resp, nil
}

// modelFromPath pulls "gemini-2.0-flash" out of
// ".../models/gemini-2.0-flash:generateContent".
func modelFromPath(p string) string {
	i := strings.LastIndex(p, "/models/")
	if i < 0 {
		return p
	}
	name := p[i+len("/models/"):]
	if j := strings.IndexByte(name, ':'); j >= 0 {
		name = name[:j]
	}
	return name
}

func msSince(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(time.Since(t).Microseconds()) / 1000
}
