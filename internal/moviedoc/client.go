// Package moviedoc wraps the document discovery and rendering collaborators
// used by the movie-test reply strategy. Both are remote services; this
// package only shuttles bytes.
package moviedoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Document is a discovered script with its extracted text.
type Document struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Config points at the collaborator services.
type Config struct {
	// SearchURL serves document discovery: GET ?s=<query> returns a
	// Document JSON body.
	SearchURL string
	// RenderURL serves markup rendering: POST markup, returns PNG bytes.
	RenderURL string
}

// Client calls the collaborator services.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 120 * time.Second},
	}
}

// FetchDocumentText finds the best-matching document for the query and
// returns its extracted text.
func (c *Client) FetchDocumentText(ctx context.Context, query string) (Document, error) {
	endpoint := c.cfg.SearchURL + "?s=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("search document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Document{}, fmt.Errorf("search document status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	if doc.ID == "" {
		return Document{}, fmt.Errorf("no document found for query %q", query)
	}
	return doc, nil
}

// RenderToImage renders markdown/HTML markup to a PNG via the render service.
func (c *Client) RenderToImage(ctx context.Context, markup string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RenderURL, bytes.NewReader([]byte(markup)))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "text/markdown")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render markup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("render markup status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	png, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rendered image: %w", err)
	}
	return png, nil
}

// Cache stores finished analyses on disk so repeated queries skip the
// fetch-analyze-render cycle.
type Cache struct {
	root string
}

// NewCache creates the cache directory if needed.
func NewCache(root string) (*Cache, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", root, err)
	}
	return &Cache{root: root}, nil
}

// Get returns the cached image and markdown for the document id, if both
// exist.
func (c *Cache) Get(id string) (png []byte, markdown string, ok bool) {
	png, err := os.ReadFile(filepath.Join(c.root, id+".png"))
	if err != nil {
		return nil, "", false
	}
	md, err := os.ReadFile(filepath.Join(c.root, id+".md"))
	if err != nil {
		return nil, "", false
	}
	return png, string(md), true
}

// Put stores the image and markdown for the document id.
func (c *Cache) Put(id string, png []byte, markdown string) error {
	if err := os.WriteFile(filepath.Join(c.root, id+".md"), []byte(markdown), 0o600); err != nil {
		return fmt.Errorf("write cached markdown: %w", err)
	}
	if err := os.WriteFile(filepath.Join(c.root, id+".png"), png, 0o600); err != nil {
		return fmt.Errorf("write cached image: %w", err)
	}
	return nil
}
