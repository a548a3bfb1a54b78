package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/atkit/botfleet/internal/firehose"
)

// StatusError reports a non-2xx XRPC response.
type StatusError struct {
	Code int
	Body string
	// RateLimit carries quota headers from rejected requests so callers can
	// update limiter state on 429s.
	RateLimit RateLimitMeta
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xrpc status %d: %s", e.Code, e.Body)
}

// IsRateLimited reports whether the error is an upstream 429 rejection.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// Client speaks XRPC JSON against one service host. The zero value is not
// usable; construct with NewClient. Authenticated calls require a session
// set via Login, ResumeSession or SetSession.
type Client struct {
	base    string
	http    *http.Client
	session Session
}

// NewClient builds a Client for the given service base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Session returns the current session.
func (c *Client) Session() Session {
	return c.session
}

// SetSession installs a previously saved session.
func (c *Client) SetSession(s Session) {
	c.session = s
}

// Login creates a fresh session from identifier and password.
func (c *Client) Login(ctx context.Context, identifier, password string) (Session, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var sess Session
	if err := c.call(ctx, http.MethodPost, "com.atproto.server.createSession", nil, body, &sess, nil); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	sess.Active = true
	c.session = sess
	return sess, nil
}

// ResumeSession validates a saved session against the server. On success the
// session is installed on the client.
func (c *Client) ResumeSession(ctx context.Context, sess Session) error {
	c.session = sess
	var current Session
	if err := c.call(ctx, http.MethodGet, "com.atproto.server.getSession", nil, nil, &current, nil); err != nil {
		c.session = Session{}
		return fmt.Errorf("resume session: %w", err)
	}
	c.session.DID = current.DID
	c.session.Handle = current.Handle
	c.session.Active = true
	return nil
}

// CreatePost writes a feed post record and returns its reference.
func (c *Client) CreatePost(ctx context.Context, draft PostDraft) (firehose.Ref, error) {
	record := map[string]any{
		"$type":     firehose.TypePost,
		"text":      draft.Text,
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	}
	if draft.Reply != nil {
		record["reply"] = draft.Reply
	}
	if len(draft.Images) > 0 {
		images := make([]map[string]any, 0, len(draft.Images))
		for _, img := range draft.Images {
			images = append(images, map[string]any{
				"alt":   img.Alt,
				"image": img.Blob,
			})
		}
		record["embed"] = map[string]any{
			"$type":  "app.bsky.embed.images",
			"images": images,
		}
	}

	body := map[string]any{
		"repo":       c.session.DID,
		"collection": firehose.TypePost,
		"record":     record,
	}
	var out firehose.Ref
	if err := c.call(ctx, http.MethodPost, "com.atproto.repo.createRecord", nil, body, &out, nil); err != nil {
		return firehose.Ref{}, fmt.Errorf("create post: %w", err)
	}
	return out, nil
}

// UploadBlob uploads binary data and returns the opaque blob reference to
// embed in records.
func (c *Client) UploadBlob(ctx context.Context, data []byte, mimeType string) (json.RawMessage, error) {
	endpoint := c.base + "/xrpc/com.atproto.repo.uploadBlob"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}
	var out struct {
		Blob json.RawMessage `json:"blob"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return out.Blob, nil
}

// GetPost fetches a single post view by its at:// URI. Thread walking is
// the caller's concern; parents are reachable via the record's reply refs.
func (c *Client) GetPost(ctx context.Context, uri string) (ThreadPost, error) {
	params := url.Values{}
	params.Set("uri", uri)
	params.Set("depth", "0")
	params.Set("parentHeight", "0")

	var out struct {
		Thread struct {
			Type string     `json:"$type"`
			Post ThreadPost `json:"post"`
		} `json:"thread"`
	}
	if err := c.call(ctx, http.MethodGet, "app.bsky.feed.getPostThread", params, nil, &out, nil); err != nil {
		return ThreadPost{}, fmt.Errorf("get post thread: %w", err)
	}
	if out.Thread.Post.URI == "" {
		return ThreadPost{}, fmt.Errorf("thread view for %s has no post", uri)
	}
	return out.Thread.Post, nil
}

// GetProfiles resolves up to 25 actors in one batch request and returns the
// response's rate-limit metadata alongside the profiles.
func (c *Client) GetProfiles(ctx context.Context, actors []string) ([]ProfileView, RateLimitMeta, error) {
	params := url.Values{}
	for _, a := range actors {
		params.Add("actors", a)
	}
	var out struct {
		Profiles []ProfileView `json:"profiles"`
	}
	var meta RateLimitMeta
	if err := c.call(ctx, http.MethodGet, "app.bsky.actor.getProfiles", params, nil, &out, &meta); err != nil {
		return nil, meta, fmt.Errorf("get profiles: %w", err)
	}
	return out.Profiles, meta, nil
}

// ListRepos fetches one page of the host's repository directory.
func (c *Client) ListRepos(ctx context.Context, cursor string) (RepoPage, error) {
	params := url.Values{}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var page RepoPage
	if err := c.call(ctx, http.MethodGet, "com.atproto.sync.listRepos", params, nil, &page, nil); err != nil {
		return RepoPage{}, fmt.Errorf("list repos: %w", err)
	}
	return page, nil
}

func (c *Client) call(
	ctx context.Context,
	method string,
	nsid string,
	params url.Values,
	body any,
	out any,
	meta *RateLimitMeta,
) error {
	endpoint := c.base + "/xrpc/" + nsid
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", nsid, err)
	}
	defer resp.Body.Close()

	if meta != nil {
		*meta = parseRateLimit(resp.Header)
	}
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", nsid, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.session.AccessJWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.AccessJWT)
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Code:      resp.StatusCode,
		Body:      string(bytes.TrimSpace(body)),
		RateLimit: parseRateLimit(resp.Header),
	}
}
