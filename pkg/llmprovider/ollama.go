package llmprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// OllamaProvider talks to a local/remote Ollama daemon over HTTP, streaming
// chat completions so LLM_HEARTBEAT can be emitted while tokens arrive.
type OllamaProvider struct {
	baseURL           string
	httpClient        *http.Client
	heartbeatInterval time.Duration
}

// NewOllamaProvider creates a provider pointed at baseURL (e.g. the
// OLLAMA_BASE_URL configuration key).
func NewOllamaProvider(baseURL string, heartbeatInterval time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL:           strings.TrimSuffix(baseURL, "/"),
		httpClient:        &http.Client{Timeout: 0}, // caller's ctx governs the deadline
		heartbeatInterval: heartbeatInterval,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Generate streams a chat completion from Ollama, emitting LLM_LOADING_MODEL
// before the request is sent, LLM_GENERATING on the first streamed token,
// LLM_HEARTBEAT on an interval while the stream is open, and LLM_DONE with
// the assembled content once the stream closes.
func (p *OllamaProvider) Generate(ctx context.Context, prompt, model string, emit EventEmitter) (string, error) {
	start := time.Now()
	fail := func(err error) (string, error) {
		emitLLMError(emit, p.Name(), model, start, err)
		return "", err
	}

	emit(models.EventLLMLoadingModel, map[string]any{"provider": p.Name(), "model": model})

	chatReq := ollamaChatRequest{
		Model:    model,
		Messages: []ollamaChatMessage{{Role: "user", Content: prompt}},
		Stream:   true,
	}
	body, err := json.Marshal(chatReq)
	if err != nil {
		return fail(fmt.Errorf("marshal ollama request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("build ollama request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fail(fmt.Errorf("ollama request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("ollama API returned status %d", resp.StatusCode))
	}

	stopHeartbeat := heartbeat(ctx, emit, p.heartbeatInterval)
	defer stopHeartbeat()

	var content strings.Builder
	firstToken := true
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue // tolerate keepalive/blank lines
		}

		if chunk.Message.Content != "" {
			if firstToken {
				emit(models.EventLLMGenerating, map[string]any{"provider": p.Name(), "model": model})
				firstToken = false
			}
			content.WriteString(chunk.Message.Content)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fail(fmt.Errorf("read ollama stream: %w", err))
	}

	result := content.String()
	emit(models.EventLLMDone, map[string]any{"provider": p.Name(), "model": model, "length": len(result)})
	return result, nil
}
