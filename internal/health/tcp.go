// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker probes a backend by attempting to establish (and immediately
// tear down) a TCP connection.
type TCPChecker struct {
	dialer *net.Dialer
}

type TCPCheckerOption func(*TCPChecker)

func WithDialer(d *net.Dialer) TCPCheckerOption {
	return func(c *TCPChecker) { c.dialer = d }
}

func NewTCPChecker(opts ...TCPCheckerOption) *TCPChecker {
	c := &TCPChecker{
		dialer: &net.Dialer{Timeout: 5 * time.Second, KeepAlive: -1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *TCPChecker) Type() string { return "tcp" }

func (c *TCPChecker) Check(ctx context.Context, target Target) Result {
	start := time.Now()
	result := Result{Timestamp: start}

	var address string
	if isIPv6(target.Address) {
		address = fmt.Sprintf("[%s]:%d", target.Address, target.Port)
	} else {
		address = fmt.Sprintf("%s:%d", target.Address, target.Port)
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", address)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("tcp connect failed: %w", err)
		return result
	}
	conn.Close()
	result.Healthy = true
	return result
}

func isIPv6(address string) bool {
	ip := net.ParseIP(address)
	return ip != nil && ip.To4() == nil
}
