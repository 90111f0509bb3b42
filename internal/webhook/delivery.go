// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Delivery configuration constants
const (
	MaxAttempts    = 5                // Maximum number of delivery attempts
	InitialBackoff = 5 * time.Second  // Initial backoff delay
	MaxBackoff     = 10 * time.Minute // Maximum backoff delay
	RequestTimeout = 30 * time.Second // HTTP request timeout
	MaxResponseLen = 10 * 1024        // Maximum response body kept for logs (10KB)
	UserAgent      = "TextPress/1.0"  // User-Agent header value
)

// Signature and metadata headers of every delivery.
const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderEvent      = "X-Webhook-Event"
	HeaderDeliveryID = "X-Webhook-Delivery-ID"
)

// DeliveryResult represents the result of a delivery attempt.
type DeliveryResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string
	Error        error
	ShouldRetry  bool
}

// httpClient is the shared HTTP client with appropriate timeouts.
var httpClient = &http.Client{
	Timeout: RequestTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	},
}

// processDelivery delivers one payload, retrying with exponential backoff
// until it succeeds, fails permanently or the dispatcher stops.
func (d *Dispatcher) processDelivery(ctx context.Context, delivery *QueuedDelivery) {
	for attempt := 1; ; attempt++ {
		result := d.attemptDelivery(ctx, delivery)
		if result.Success {
			d.logger.Info("webhook delivered successfully",
				"delivery_id", delivery.DeliveryID,
				"url", delivery.Endpoint.URL,
				"status_code", result.StatusCode)
			return
		}

		errMsg := ""
		if result.Error != nil {
			errMsg = result.Error.Error()
		}
		if !result.ShouldRetry || attempt >= d.cfg.MaxAttempts {
			d.logger.Warn("webhook delivery failed",
				"delivery_id", delivery.DeliveryID,
				"url", delivery.Endpoint.URL,
				"attempts", attempt,
				"reason", errMsg)
			return
		}

		backoff := calculateBackoff(attempt, d.cfg.InitialBackoff)
		d.logger.Info("webhook delivery scheduled for retry",
			"delivery_id", delivery.DeliveryID,
			"attempt", attempt,
			"backoff", backoff.String(),
			"reason", errMsg)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-d.done:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// attemptDelivery performs the actual HTTP POST request.
func (d *Dispatcher) attemptDelivery(ctx context.Context, delivery *QueuedDelivery) DeliveryResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.Endpoint.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Errorf("failed to create request: %w", err),
			ShouldRetry: false, // Bad URL, don't retry
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderSignature, GenerateSignature(delivery.Payload, delivery.Endpoint.Secret))
	req.Header.Set(HeaderEvent, delivery.Event)
	req.Header.Set(HeaderDeliveryID, strconv.FormatInt(delivery.DeliveryID, 10))

	resp, err := d.client.Do(req)
	if err != nil {
		return DeliveryResult{
			Error:       fmt.Errorf("request failed: %w", err),
			ShouldRetry: true, // Network error, retry
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseLen))
	responseBody := string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return DeliveryResult{
			Success:      true,
			StatusCode:   resp.StatusCode,
			ResponseBody: responseBody,
		}
	}

	result := DeliveryResult{
		StatusCode:   resp.StatusCode,
		ResponseBody: responseBody,
		Error:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		ShouldRetry:  true,
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Client error - don't retry (except for 408 Request Timeout and 429 Too Many Requests)
		result.ShouldRetry = resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests
	}
	return result
}

// calculateBackoff returns initial * 2^(attempt-1), capped at MaxBackoff.
func calculateBackoff(attempt int, initial time.Duration) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	backoff := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if backoff > MaxBackoff {
		backoff = MaxBackoff
	}
	return backoff
}
