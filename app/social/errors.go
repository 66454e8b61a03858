package social

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrTargetGone  = errors.New("target post deleted or not visible")
)

const (
	problemNotFound      = "https://api.twitter.com/2/problems/resource-not-found"
	problemNotAuthorized = "https://api.twitter.com/2/problems/not-authorized-for-resource"
)

// targetGonePhrases are matched case-insensitively against error details.
var targetGonePhrases = []string{
	"deleted or not visible",
	"could not find tweet",
	"no status found",
	"not authorized to see",
	"tweet that is deleted",
}

// Problem is one entry of an X API v2 error payload.
type Problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
	Status int    `json:"status,omitempty"`
}

// APIError is a non-successful X API response. It matches ErrRateLimited
// and ErrTargetGone through errors.Is.
type APIError struct {
	Endpoint   string
	StatusCode int
	Problems   []Problem
}

func (e *APIError) Error() string {
	var details []string
	for _, p := range e.Problems {
		switch {
		case p.Detail != "":
			details = append(details, p.Detail)
		case p.Title != "":
			details = append(details, p.Title)
		}
	}
	if len(details) == 0 {
		return fmt.Sprintf("%s: HTTP %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, strings.Join(details, "; "))
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrTargetGone:
		return e.targetGone()
	}
	return false
}

func (e *APIError) targetGone() bool {
	for _, p := range e.Problems {
		if p.Type == problemNotFound || p.Type == problemNotAuthorized {
			return true
		}
		if matchesTargetGone(p.Detail) || matchesTargetGone(p.Title) {
			return true
		}
	}
	return false
}

func matchesTargetGone(msg string) bool {
	if msg == "" {
		return false
	}
	msg = strings.ToLower(msg)
	for _, phrase := range targetGonePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
