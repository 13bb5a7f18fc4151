package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Unknown stands in for an absent agent or address. The fingerprint stays
// computable, only weaker.
const Unknown = "unknown"

// Device is the identity proxy derived from one inbound request.
//
// The fingerprint hashes client-declared headers. Anyone who can replay the
// same User-Agent from the same address produces the same value, so it only
// detects a stolen session after the fact; it does not prevent theft.
type Device struct {
	UserAgent   string
	IPAddress   string
	Fingerprint string
}

// Fingerprint derives the device identity from an agent string and an address.
func Fingerprint(userAgent string, ipAddress string) string {
	sum := sha256.Sum256([]byte(userAgent + ":" + ipAddress))
	return hex.EncodeToString(sum[:])
}

func NewDevice(userAgent string, ipAddress string) Device {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		userAgent = Unknown
	}
	ipAddress = strings.TrimSpace(ipAddress)
	if ipAddress == "" {
		ipAddress = Unknown
	}
	return Device{
		UserAgent:   userAgent,
		IPAddress:   ipAddress,
		Fingerprint: Fingerprint(userAgent, ipAddress),
	}
}

// DeviceFromRequest reads the agent and the first forwarded address.
func DeviceFromRequest(r *http.Request) Device {
	return NewDevice(r.Header.Get("User-Agent"), clientAddress(r.Header))
}

func clientAddress(h http.Header) string {
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(h.Get("X-Real-IP")); real != "" {
		return real
	}
	return Unknown
}

// ParseAgent reduces a User-Agent to coarse browser and OS labels for display.
func ParseAgent(userAgent string) (browser string, os string) {
	browser, os = "Unknown", "Unknown"

	switch {
	case strings.Contains(userAgent, "Edg"):
		browser = "Edge"
	case strings.Contains(userAgent, "Chrome"):
		browser = "Chrome"
	case strings.Contains(userAgent, "Firefox"):
		browser = "Firefox"
	case strings.Contains(userAgent, "Safari"):
		browser = "Safari"
	}

	switch {
	case strings.Contains(userAgent, "Windows"):
		os = "Windows"
	case strings.Contains(userAgent, "Android"):
		os = "Android"
	case strings.Contains(userAgent, "iPhone"), strings.Contains(userAgent, "iPad"):
		os = "iOS"
	case strings.Contains(userAgent, "Mac"):
		os = "macOS"
	case strings.Contains(userAgent, "Linux"):
		os = "Linux"
	}

	return browser, os
}
