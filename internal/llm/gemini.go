package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"refinery/internal/logging"
)

// GeminiClient implements ModelClient against the Gemini REST API using
// server-sent events for streaming.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	enableSearch    bool
	httpClient      *http.Client
	mu              sync.Mutex
	lastRequest     time.Time
}

// NewGeminiClient creates a client with default config.
func NewGeminiClient(apiKey string) *GeminiClient {
	return NewGeminiClientWithConfig(DefaultConfig(apiKey))
}

// NewGeminiClientWithConfig creates a client with custom config.
func NewGeminiClientWithConfig(config Config) *GeminiClient {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = DefaultConfig("").Model
	}
	maxTokens := config.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultConfig("").MaxOutputTokens
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig("").Timeout
	}
	return &GeminiClient{
		apiKey:          config.APIKey,
		baseURL:         config.BaseURL,
		model:           model,
		maxOutputTokens: maxTokens,
		enableSearch:    config.EnableSearch,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// StreamTurn sends the transcript plus the new turn's parts and streams the
// response back as deltas. The stream always runs under a deadline: one is
// applied from the client timeout when the context carries none.
func (c *GeminiClient) StreamTurn(ctx context.Context, history []Turn, parts []Part) (<-chan Delta, <-chan error) {
	deltaChan := make(chan Delta, 100)
	errorChan := make(chan error, 1)

	logging.APIDebug("StreamTurn: model=%s history=%d parts=%d", c.model, len(history), len(parts))

	go func() {
		defer close(deltaChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()

		if c.apiKey == "" {
			logging.APIError("StreamTurn: API key not configured")
			errorChan <- fmt.Errorf("API key not configured")
			return
		}

		// Rate limiting
		c.mu.Lock()
		elapsed := time.Since(c.lastRequest)
		if elapsed < 100*time.Millisecond {
			time.Sleep(100*time.Millisecond - elapsed)
		}
		c.lastRequest = time.Now()
		c.mu.Unlock()

		reqBody := geminiRequest{
			Contents: c.buildContents(history, parts),
			GenerationConfig: geminiGenerationConfig{
				Temperature:     1.0,
				MaxOutputTokens: c.maxOutputTokens,
			},
		}
		if c.enableSearch {
			reqBody.Tools = []geminiTool{{GoogleSearch: &geminiGoogleSearch{}}}
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)

		maxRetries := 3
		var lastErr error

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
			}

			jsonData, err := json.Marshal(reqBody)
			if err != nil {
				errorChan <- fmt.Errorf("failed to marshal request: %w", err)
				return
			}

			req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
			if err != nil {
				errorChan <- fmt.Errorf("failed to create request: %w", err)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "text/event-stream")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				lastErr = fmt.Errorf("request failed: %w", err)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
				continue
			}

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				errorChan <- fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
				return
			}

			c.scanStream(ctx, resp, deltaChan, errorChan, startTime)
			return
		}

		logging.APIError("StreamTurn: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
		errorChan <- fmt.Errorf("max retries exceeded: %w", lastErr)
	}()

	return deltaChan, errorChan
}

// scanStream reads SSE lines off the response body, forwarding text and
// citation deltas until the stream ends, errors, or the context is done.
func (c *GeminiClient) scanStream(ctx context.Context, resp *http.Response, deltaChan chan<- Delta, errorChan chan<- error, startTime time.Time) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	scanDone := make(chan struct{})
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(scanDone)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" || data == "[DONE]" {
				if data == "[DONE]" {
					return
				}
				continue
			}

			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				scanErrChan <- fmt.Errorf("API error: %s", chunk.Error.Message)
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}

			delta := Delta{Citations: extractCitations(&chunk)}
			for _, part := range chunk.Candidates[0].Content.Parts {
				delta.Text += part.Text
			}
			if delta.Text == "" && len(delta.Citations) == 0 {
				continue
			}
			select {
			case deltaChan <- delta:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	select {
	case <-scanDone:
		select {
		case err := <-scanErrChan:
			logging.APIError("StreamTurn: stream error after %v: %v", time.Since(startTime), err)
			errorChan <- fmt.Errorf("stream error: %w", err)
		default:
			logging.API("StreamTurn: completed in %v", time.Since(startTime))
		}
	case <-ctx.Done():
		resp.Body.Close()
		<-scanDone
		logging.APIError("StreamTurn: cancelled after %v", time.Since(startTime))
		errorChan <- ctx.Err()
	}
}

// buildContents converts the transcript and the new turn into wire contents.
func (c *GeminiClient) buildContents(history []Turn, parts []Part) []geminiContent {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, turn := range history {
		contents = append(contents, geminiContent{
			Role:  turn.Role,
			Parts: toWireParts(turn.Parts),
		})
	}
	contents = append(contents, geminiContent{
		Role:  RoleUser,
		Parts: toWireParts(parts),
	})
	return contents
}

func toWireParts(parts []Part) []geminiPart {
	out := make([]geminiPart, 0, len(parts))
	for _, p := range parts {
		if len(p.Data) > 0 {
			out = append(out, geminiPart{InlineData: &geminiBlob{MIMEType: p.MIMEType, Data: p.Data}})
			continue
		}
		out = append(out, geminiPart{Text: p.Text})
	}
	return out
}

func extractCitations(chunk *geminiResponse) []Citation {
	gm := chunk.Candidates[0].GroundingMetadata
	if gm == nil {
		return nil
	}
	var citations []Citation
	for _, gc := range gm.GroundingChunks {
		if gc.Web != nil && gc.Web.URI != "" {
			citations = append(citations, Citation{URI: gc.Web.URI, Title: gc.Web.Title})
		}
	}
	return citations
}
