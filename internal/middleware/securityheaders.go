// Package middleware provides HTTP middleware for the service.
//
// This file sets HTTP security headers: HSTS, a nonce-based
// Content-Security-Policy, X-Frame-Options, and related hardening headers.
// SecurityHeaders is the production variant; SecurityHeadersRelaxed loosens
// CSP for local development.
package middleware

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/gin-gonic/gin"
)

// generateNonce creates a cryptographically secure random nonce.
//
// A nonce (number used once) is a random value used in CSP to allow specific
// inline scripts/styles while blocking all others. The nonce must be:
//   - Unpredictable (cryptographically random)
//   - Unique per request (never reused)
//   - Base64-encoded (safe for HTTP headers)
//
// # Nonce Generation Algorithm
//
//  1. Generate 16 random bytes (128 bits of entropy)
//  2. Encode as padded base64 string (24 characters)
//  3. Return string for use in CSP header and templates
//
// # Security Properties
//
// **Entropy**: 128 bits (2^128 possible values)
//   - Guessing probability: 1 in 340,282,366,920,938,463,463,374,607,431,768,211,456
//   - Practically impossible to guess
//
// **Uniqueness**: Cryptographic RNG ensures no collisions
//   - Birthday paradox: 2^64 nonces before 50% collision probability
//   - Server would need to generate billions of requests/second for years
//
// # Example Output
//
//	"k7jE2xQ4ZqP9wN3aB5dF8g=="  (24 characters, base64)
//
// # Error Handling
//
// If random number generation fails (extremely rare):
//   - Returns empty string
//   - Caller falls back to strict CSP without nonces
//   - Still secure (blocks ALL inline scripts)
//
// Returns:
//   - string: Base64-encoded nonce (24 characters)
//   - error: Only if crypto/rand fails (system entropy exhausted)
//
func generateNonce() (string, error) {
	bytes := make([]byte, 16) // 128 bits of entropy
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// SecurityHeaders adds hardening headers, including a nonce-based CSP, to
// every response. Use SecurityHeaders in production and SecurityHeadersRelaxed
// only for local development.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := generateNonce()
		if err != nil {
			nonce = ""
		}
		c.Set("csp_nonce", nonce)

		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")

		var csp string
		if nonce != "" {
			csp = "default-src 'self'; " +
				"script-src 'self' 'nonce-" + nonce + "'; " +
				"style-src 'self' 'nonce-" + nonce + "'; " +
				"img-src 'self' data: https:; " +
				"font-src 'self' data:; " +
				"connect-src 'self'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'; " +
				"upgrade-insecure-requests; " +
				"block-all-mixed-content"
		} else {
			csp = "default-src 'self'; " +
				"script-src 'self'; " +
				"style-src 'self'; " +
				"img-src 'self' data: https:; " +
				"font-src 'self' data:; " +
				"connect-src 'self'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'"
		}
		c.Header("Content-Security-Policy", csp)

		// Referrer-Policy
		// Controls referrer information sent to other sites
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Permissions-Policy (formerly Feature-Policy)
		// Disables potentially dangerous browser features
		c.Header("Permissions-Policy",
			"geolocation=(), "+
				"microphone=(), "+
				"camera=(), "+
				"payment=(), "+
				"usb=(), "+
				"magnetometer=(), "+
				"gyroscope=(), "+
				"accelerometer=()")

		// X-Permitted-Cross-Domain-Policies
		// Prevents Adobe Flash and PDF from loading content
		c.Header("X-Permitted-Cross-Domain-Policies", "none")

		// X-Download-Options
		// Prevents Internet Explorer from executing downloads in site context
		c.Header("X-Download-Options", "noopen")

		if c.Request.URL.Path != "/health" {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
		}

		c.Header("Server", "")

		c.Next()
	}
}

// SecurityHeadersRelaxed is the weaker, development-only variant: CSP
// allows unsafe-inline/unsafe-eval and framing is same-origin. Never use
// this in production.
func SecurityHeadersRelaxed() gin.HandlerFunc {
	return func(c *gin.Context) {
		// A subset of SecurityHeaders()' headers with a relaxed CSP; no
		// nonce, Permissions-Policy, Cache-Control or Pragma is set
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN") // Allow same-origin framing for dev
		c.Header("X-XSS-Protection", "1; mode=block")

		// Relaxed CSP for development
		c.Header("Content-Security-Policy",
			"default-src 'self' 'unsafe-inline' 'unsafe-eval'; "+
			"img-src 'self' data: https:; "+
			"connect-src 'self' ws: wss: http: https:")

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")

		c.Next()
	}
}
