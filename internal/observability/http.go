package observability

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity is what the handshake tells us about the remote device.
type ClientIdentity struct {
	DeviceID  string
	IP        string
	UserAgent string
}

func IdentityFromRequest(r *http.Request) ClientIdentity {
	return ClientIdentity{
		DeviceID:  r.Header.Get("X-Device-Id"),
		IP:        ipFromRequest(r),
		UserAgent: r.UserAgent(),
	}
}

func ipFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
