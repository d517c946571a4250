// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// OpenGSLB is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPLv3)
//    Free forever for open-source and internal use. You may copy, modify,
//    and distribute this software under the terms of the AGPLv3.
//    → https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Commercial licenses are available for proprietary integration,
//    closed-source appliances, SaaS offerings, and dedicated support.
//    Contact: licensing@opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package health

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPChecker probes a backend with an HTTP GET and treats a 2xx response
// (or an explicit allow-list of status codes) as healthy.
type HTTPChecker struct {
	client *http.Client

	ValidStatusCodes   []int
	FollowRedirects    bool
	InsecureSkipVerify bool
}

// HTTPCheckerOption configures an HTTPChecker.
type HTTPCheckerOption func(*HTTPChecker)

func WithValidStatusCodes(codes ...int) HTTPCheckerOption {
	return func(c *HTTPChecker) { c.ValidStatusCodes = codes }
}

func WithFollowRedirects(follow bool) HTTPCheckerOption {
	return func(c *HTTPChecker) { c.FollowRedirects = follow }
}

func WithInsecureSkipVerify(skip bool) HTTPCheckerOption {
	return func(c *HTTPChecker) { c.InsecureSkipVerify = skip }
}

// NewHTTPChecker builds an HTTPChecker with a short-lived, non-pooled
// client: health probes should never reuse or hold connections open.
func NewHTTPChecker(opts ...HTTPCheckerOption) *HTTPChecker {
	c := &HTTPChecker{}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		DisableKeepAlives:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.InsecureSkipVerify,
		},
	}

	c.client = &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
	}

	if !c.FollowRedirects {
		c.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return c
}

func (c *HTTPChecker) Type() string { return "http" }

func (c *HTTPChecker) Check(ctx context.Context, target Target) Result {
	start := time.Now()
	result := Result{Timestamp: start}

	scheme := target.Scheme
	if scheme == "" || scheme == "tcp" {
		scheme = "http"
	}
	path := target.Path
	if path == "" {
		path = "/"
	}
	url := fmt.Sprintf("%s://%s:%d%s", scheme, target.Address, target.Port, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Errorf("build health-check request: %w", err)
		result.Latency = time.Since(start)
		return result
	}
	req.Header.Set("User-Agent", "gslbd-healthcheck/1.0")
	req.Header.Set("Connection", "close")
	if target.Host != "" {
		req.Host = target.Host
	}

	resp, err := c.client.Do(req)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("health-check request failed: %w", err)
		return result
	}
	defer resp.Body.Close()

	if c.isValidStatus(resp.StatusCode) {
		result.Healthy = true
	} else {
		result.Error = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return result
}

func (c *HTTPChecker) isValidStatus(code int) bool {
	if len(c.ValidStatusCodes) == 0 {
		return code >= 200 && code < 300
	}
	for _, valid := range c.ValidStatusCodes {
		if code == valid {
			return true
		}
	}
	return false
}
