// Package llm is the text-generation collaborator: a thin chat-completions
// client used to pick quotes, generate answers, and analyze documents.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Config configures the Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// ThreadMessage is one conversation turn given to the model as context.
type ThreadMessage struct {
	Handle string
	Text   string
	// Bot marks the fleet's own messages so prompts can label them.
	Bot bool
}

// Client calls a chat-completions compatible endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// PickQuote asks the model to select one candidate quote by index for the
// given conversation. The returned index is validated against candidates.
func (c *Client) PickQuote(ctx context.Context, candidates []string, thread []ThreadMessage) (int, error) {
	var sb strings.Builder
	sb.WriteString("You are a quote picking expert. You are given a social media thread, ")
	sb.WriteString("and must pick a quote from a list of quotes one can reply with.\n\n")
	sb.WriteString("Here is the conversation thread, with your messages marked with [BOT]:\n\n")
	sb.WriteString(renderThread(thread))
	sb.WriteString("\n\nHere are the quotes\n\n")
	for i, q := range candidates {
		fmt.Fprintf(&sb, "%d - %s\n", i, q)
	}
	sb.WriteString("\nPick the quote that best fits as the next post in the thread. ")
	sb.WriteString("Best means that using it as a reply is funny.\n\n")
	sb.WriteString("Output the index of the quote and nothing else.")

	raw, err := c.complete(ctx, sb.String(), c.cfg.Temperature, 0)
	if err != nil {
		return 0, fmt.Errorf("pick quote: %w", err)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse quote index %q: %w", raw, err)
	}
	if idx < 0 || idx >= len(candidates) {
		return 0, fmt.Errorf("quote index %d out of range [0,%d)", idx, len(candidates))
	}
	return idx, nil
}

// GenerateAnswer asks the model for a conversational reply to the thread.
// Length bounding is the caller's concern.
func (c *Client) GenerateAnswer(ctx context.Context, persona string, thread []ThreadMessage) (string, error) {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nHere is the conversation thread, with your messages marked with [BOT]:\n\n")
	sb.WriteString(renderThread(thread))
	sb.WriteString("\n\nGenerate a single response in the language of the conversation. ")
	sb.WriteString("Do not include quotes or explanations.")

	answer, err := c.complete(ctx, sb.String(), 0.9, 100)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// Analyze asks the model for a markdown analysis of a document.
func (c *Client) Analyze(ctx context.Context, instructions, document string) (string, error) {
	prompt := instructions + "\n\nHere is the document:\n\n" + document
	analysis, err := c.complete(ctx, prompt, c.cfg.Temperature, 0)
	if err != nil {
		return "", fmt.Errorf("analyze document: %w", err)
	}
	return analysis, nil
}

func renderThread(thread []ThreadMessage) string {
	lines := make([]string, 0, len(thread))
	for _, msg := range thread {
		prefix := ""
		if msg.Bot {
			prefix = "[BOT] "
		}
		text := strings.ReplaceAll(msg.Text, "\n", " ")
		lines = append(lines, fmt.Sprintf("%s@%s: %s", prefix, msg.Handle, text))
	}
	return strings.Join(lines, "\n")
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "system", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("chat completion status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
