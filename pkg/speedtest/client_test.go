package speedtest

import (
	"net/http"
	"testing"
	"time"

	"github.com/quic-go/quic-go/http3"
)

func TestHTTPClientConnectTimeout(t *testing.T) {
	_, closer, err := newHTTPClient(ClientConfig{HTTP3: true, ConnectTimeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("newHTTPClient: %v", err)
	}
	h3, ok := closer.(*http3.Transport)
	if !ok {
		t.Fatalf("expected an HTTP/3 transport, got %T", closer)
	}
	if h3.QUICConfig == nil || h3.QUICConfig.HandshakeIdleTimeout != 3*time.Second {
		t.Fatalf("expected QUIC handshake bounded by the connect timeout, got %+v", h3.QUICConfig)
	}

	_, closer, err = newHTTPClient(ClientConfig{})
	if err != nil {
		t.Fatalf("newHTTPClient: %v", err)
	}
	tcp, ok := closer.(*http.Transport)
	if !ok {
		t.Fatalf("expected a TCP transport, got %T", closer)
	}
	if tcp.TLSHandshakeTimeout != 10*time.Second {
		t.Fatalf("expected default connect timeout, got %v", tcp.TLSHandshakeTimeout)
	}
}
