package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/nonverb/pkg/client"
	"github.com/menta2k/nonverb/pkg/types"
)

// DefaultModel is a vision model that handles face boxes reasonably well.
const DefaultModel = "qwen2.5vl:7b"

// EmotionPrompt asks the model for the same payload the analysis service
// returns.
const EmotionPrompt = `You are a facial expression classifier.

Return JSON only:
{
  "emotion": "UPPERCASE single word",
  "boundingBox": {"Left": 0.0, "Top": 0.0, "Width": 0.0, "Height": 0.0}
}

HARD RULES
- emotion is one of HAPPY, SAD, ANGRY, CONFUSED, DISGUSTED, SURPRISED, CALM, FEAR.
- boundingBox tightly encloses the most prominent face.
- All coordinates are normalized to [0,1] (NOT pixels).
- If there is no face, return {"emotion": "", "boundingBox": null}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Client wraps the Ollama API client as an analysis backend.
type Client struct {
	client *api.Client
	model  string
	prompt string
}

// NewClient creates a new Ollama backend for the server at ollamaURL.
func NewClient(ollamaURL, model string, httpClient *http.Client) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", ollamaURL)
	}

	// drop paths like /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		client: api.NewClient(baseURL, httpClient),
		model:  model,
		prompt: EmotionPrompt,
	}, nil
}

// Name identifies the backend in logs.
func (c *Client) Name() string {
	return "ollama"
}

// Analyze asks the model for an emotion label and a face box. Ollama has
// no speech output, so AudioURL is always empty.
func (c *Client) Analyze(ctx context.Context, img client.Image) (*types.AnalysisResult, error) {
	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: c.prompt,
				Images:  []api.ImageData{api.ImageData(img.Data)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: map[string]any{"temperature": 0.1},
	}

	var responseContent strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			e := types.NewError(types.KindServerError, "analysis.ollama", errors.New(statusErr.ErrorMessage))
			e.StatusCode = statusErr.StatusCode
			return nil, e
		}
		return nil, types.NewError(types.KindNetworkError, "analysis.ollama", err)
	}

	if strings.TrimSpace(responseContent.String()) == "" {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.ollama", errors.New("empty response from ollama"))
	}
	return parseAnalysisResult(responseContent.String())
}

type wireResult struct {
	Emotion     string        `json:"emotion"`
	BoundingBox *types.Region `json:"boundingBox"`
}

// parseAnalysisResult parses the model output. Anything without a label is
// an empty response.
func parseAnalysisResult(raw string) (*types.AnalysisResult, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.ollama", errors.New("model returned non-JSON response"))
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.ollama", fmt.Errorf("failed to parse model response: %w", err))
	}
	label := strings.ToUpper(strings.TrimSpace(wire.Emotion))
	if label == "" {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.ollama", errors.New("no face found"))
	}
	return &types.AnalysisResult{Label: label, Region: wire.BoundingBox}, nil
}

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON removes code fences, comments, and trailing commas from
// a model response and keeps the outermost object.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
