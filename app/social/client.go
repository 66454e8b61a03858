package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/lysyi3m/answer-relay/app/ratelimit"
)

const (
	DefaultBaseURL   = "https://api.twitter.com"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "answer-relay/1.0"

	maxErrorBody = 64 << 10
)

// Client is the posting capability used by the delivery engine.
type Client interface {
	LookupPost(ctx context.Context, postID string) (bool, ratelimit.Metadata, error)
	PostReply(ctx context.Context, text, inReplyToID string) (string, ratelimit.Metadata, error)
}

type Options struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	UserAgent   string
}

var _ Client = (*XClient)(nil)

// XClient talks to the X API v2 with a bearer token.
type XClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

func NewXClient(opts Options) (*XClient, error) {
	if strings.TrimSpace(opts.AccessToken) == "" {
		return nil, errors.New("access token is required")
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.AccessToken,
		TokenType:   "Bearer",
	})

	return &XClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &oauth2.Transport{Source: source, Base: http.DefaultTransport},
		},
	}, nil
}

type lookupResponse struct {
	Data *struct {
		ID string `json:"id"`
	} `json:"data"`
	Errors []Problem `json:"errors"`
}

// LookupPost reports whether postID is visible to the authenticated user.
// A missing or protected post is reported as false with a nil error.
func (c *XClient) LookupPost(ctx context.Context, postID string) (bool, ratelimit.Metadata, error) {
	endpoint := "/2/tweets/" + url.PathEscape(postID)

	var body lookupResponse
	meta, err := c.do(ctx, http.MethodGet, endpoint, nil, &body)
	if err != nil {
		if errors.Is(err, ErrTargetGone) {
			return false, meta, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return false, meta, nil
		}
		return false, meta, err
	}

	if body.Data != nil && body.Data.ID != "" {
		return true, meta, nil
	}

	// v2 answers 200 with an errors array for posts it cannot return.
	apiErr := &APIError{Endpoint: endpoint, StatusCode: http.StatusOK, Problems: body.Errors}
	if apiErr.targetGone() || len(body.Errors) == 0 {
		return false, meta, nil
	}
	return false, meta, apiErr
}

type createRequest struct {
	Text  string         `json:"text"`
	Reply *createReplyTo `json:"reply,omitempty"`
}

type createReplyTo struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// PostReply publishes text as a reply to inReplyToID and returns the new post id.
func (c *XClient) PostReply(ctx context.Context, text, inReplyToID string) (string, ratelimit.Metadata, error) {
	payload := createRequest{Text: text}
	if inReplyToID != "" {
		payload.Reply = &createReplyTo{InReplyToTweetID: inReplyToID}
	}

	var body createResponse
	meta, err := c.do(ctx, http.MethodPost, "/2/tweets", payload, &body)
	if err != nil {
		return "", meta, err
	}
	if body.Data.ID == "" {
		return "", meta, errors.New("/2/tweets: response has no post id")
	}

	return body.Data.ID, meta, nil
}

func (c *XClient) do(ctx context.Context, method, endpoint string, payload, out any) (ratelimit.Metadata, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return ratelimit.Metadata{}, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return ratelimit.Metadata{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ratelimit.Metadata{}, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	meta := ratelimit.FromHeaders(resp.Header)

	slog.Debug("X API response",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"remaining", meta.Remaining)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return meta, decodeError(endpoint, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return meta, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return meta, nil
}

func decodeError(endpoint string, resp *http.Response) error {
	apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return apiErr
	}

	// Errors come either as a single problem object or wrapped in "errors".
	var wrapped struct {
		Errors []Problem `json:"errors"`
		Problem
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		apiErr.Problems = []Problem{{Detail: strings.TrimSpace(string(data))}}
		return apiErr
	}

	apiErr.Problems = wrapped.Errors
	if wrapped.Problem != (Problem{}) {
		apiErr.Problems = append(apiErr.Problems, wrapped.Problem)
	}
	return apiErr
}
