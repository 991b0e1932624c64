// Package network classifies failures of outbound requests.
package network

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

var indicators = []string{
	"connection refused",
	"no such host",
	"timeout",
	"network is unreachable",
	"no route to host",
	"host is down",
	"dial tcp",
	"dial udp",
	"i/o timeout",
	"connection reset",
	"temporary failure in name resolution",
	"tls handshake",
}

// IsNetworkError reports whether err looks like the remote end could not be
// reached at all, as opposed to the remote end answering with a failure.
// Cancellation by the caller is not a network error.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// *url.Error satisfies net.Error for any cause; classify what it wraps.
	var urlErr *url.Error
	for errors.As(err, &urlErr) {
		err = urlErr.Err
		if err == nil {
			return false
		}
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
