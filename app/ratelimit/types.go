package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Class groups API endpoints that share one quota window.
type Class string

const (
	ClassPost   Class = "post"
	ClassLookup Class = "lookup"
)

const (
	HeaderLimit     = "x-rate-limit-limit"
	HeaderRemaining = "x-rate-limit-remaining"
	HeaderReset     = "x-rate-limit-reset"
)

// Metadata is the quota information returned alongside an API response.
// Only fields flagged as present overwrite tracked state.
type Metadata struct {
	Limit        int
	Remaining    int
	ResetAt      time.Time
	HasLimit     bool
	HasRemaining bool
	HasReset     bool
}

func (m Metadata) IsEmpty() bool {
	return !m.HasLimit && !m.HasRemaining && !m.HasReset
}

// FromHeaders reads the x-rate-limit-* headers. The reset header holds
// epoch seconds. Malformed values are ignored.
func FromHeaders(h http.Header) Metadata {
	var m Metadata

	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(HeaderLimit))); err == nil {
		m.Limit = v
		m.HasLimit = true
	}
	if v, err := strconv.Atoi(strings.TrimSpace(h.Get(HeaderRemaining))); err == nil {
		m.Remaining = v
		m.HasRemaining = true
	}
	if v, err := strconv.ParseInt(strings.TrimSpace(h.Get(HeaderReset)), 10, 64); err == nil {
		m.ResetAt = time.Unix(v, 0).UTC()
		m.HasReset = true
	}

	return m
}

type State struct {
	Limit         int       `json:"limit"`
	Remaining     int       `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

type Decision struct {
	CanProceed bool
	Wait       time.Duration
}

// WaitRecorder receives the time spent waiting for a quota reset.
type WaitRecorder interface {
	RecordRateLimitWait(d time.Duration)
}
