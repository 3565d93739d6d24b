// Package httpcfg builds *http.Client instances shared by components that
// talk to the upstream Prometheus-compatible API and the ClickHouse HTTP
// interface, and centralizes the Basic Auth password-normalization rule.
package httpcfg

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Client builds an *http.Client with the given timeout and TLS verification
// setting. insecure=true disables certificate verification.
func Client(timeout time.Duration, insecure bool) *http.Client {
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit operator opt-in
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// SetBasicAuth applies HTTP Basic Auth to req following the password
// normalization rule: when user is non-empty, Basic Auth is always sent,
// even with an empty password — required by both upstream and destination
// when the configured account has an empty password. When user is empty,
// no Authorization header is added at all.
func SetBasicAuth(req *http.Request, user, password string) {
	if user == "" {
		return
	}
	req.SetBasicAuth(user, password)
}
