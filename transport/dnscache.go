// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// defaultDNSTTL bounds how long resolved addresses are reused.
const defaultDNSTTL = 300 * time.Second

// CachedResolver memoizes DNS lookups with a TTL so high-QPS callers
// do not resolve the service host on every request. Safe for
// concurrent use.
type CachedResolver struct {
	cache    *gocache.Cache
	resolver *net.Resolver
}

// NewCachedResolver builds a resolver with the given TTL. A zero ttl
// selects the 300 s default.
func NewCachedResolver(ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = defaultDNSTTL
	}
	return &CachedResolver{
		cache:    gocache.New(ttl, 2*ttl),
		resolver: net.DefaultResolver,
	}
}

// LookupHost resolves the host, consulting the cache first. IP
// literals pass through untouched.
func (r *CachedResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}
	if cached, ok := r.cache.Get(host); ok {
		return cached.([]string), nil
	}
	addrs, err := r.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	r.cache.SetDefault(host, addrs)
	return addrs, nil
}

// Flush drops all cached entries.
func (r *CachedResolver) Flush() {
	r.cache.Flush()
}

// DialContext is a net.Dialer DialContext replacement that resolves
// through the cache and tries each address in order.
func (r *CachedResolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	var lastErr error
	for _, resolved := range addrs {
		conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(resolved, port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no addresses for %s", host)
	}
	return nil, lastErr
}
