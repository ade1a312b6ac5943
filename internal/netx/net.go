// Package netx contains low-level network probes.
package netx

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// HostPort extracts host:port from a base URL, filling in the scheme's
// default port.
func HostPort(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// Reachable dials the backend behind baseURL and closes the connection
// immediately. The context bounds the dial.
func Reachable(ctx context.Context, baseURL string) error {
	addr, err := HostPort(baseURL)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
