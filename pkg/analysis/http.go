package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/menta2k/nonverb/pkg/client"
	"github.com/menta2k/nonverb/pkg/types"
)

// DefaultServiceURL is where the analysis service listens by default.
const DefaultServiceURL = "http://localhost:5000/analyze"

// FileField is the multipart field carrying the image.
const FileField = "file"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrResponseTooLarge is the cause reported for success bodies over
// maxResponseBytes.
var ErrResponseTooLarge = fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)

// HTTPBackend talks to the analysis service over multipart HTTP.
type HTTPBackend struct {
	serviceURL *url.URL
	httpClient *http.Client
	userAgent  string
}

// NewHTTPBackend creates a backend posting to serviceURL. A zero timeout
// leaves the exchange bounded only by the transport.
func NewHTTPBackend(serviceURL string, timeout time.Duration) (*HTTPBackend, error) {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", u.Scheme)
	}

	return &HTTPBackend{
		serviceURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent: "nonverb/1.0",
	}, nil
}

// WithHTTPClient replaces the HTTP client, mostly for tests.
func (b *HTTPBackend) WithHTTPClient(c *http.Client) *HTTPBackend {
	b.httpClient = c
	return b
}

// Name identifies the backend in logs.
func (b *HTTPBackend) Name() string {
	return "http"
}

// wireResult mirrors the service's JSON body.
type wireResult struct {
	Emotion     string        `json:"emotion"`
	AudioURL    string        `json:"audioUrl"`
	BoundingBox *types.Region `json:"boundingBox"`
	Error       string        `json:"error"`
}

// Analyze posts img as a single multipart file field.
func (b *HTTPBackend) Analyze(ctx context.Context, img client.Image) (*types.AnalysisResult, error) {
	body, contentType, err := buildMultipart(img)
	if err != nil {
		return nil, types.NewError(types.KindNetworkError, "analysis.http", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serviceURL.String(), body)
	if err != nil {
		return nil, types.NewError(types.KindNetworkError, "analysis.http", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, types.NewError(types.KindNetworkError, "analysis.http", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, types.NewError(types.KindNetworkError, "analysis.http", fmt.Errorf("failed to read response: %w", err))
	}
	oversize := len(raw) > maxResponseBytes
	if oversize {
		raw = raw[:maxResponseBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := types.NewError(types.KindServerError, "analysis.http", serverMessage(raw))
		e.StatusCode = resp.StatusCode
		return nil, e
	}

	if oversize {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.http", ErrResponseTooLarge)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.http", errors.New("empty body"))
	}

	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.http", fmt.Errorf("unreadable body: %w", err))
	}
	if strings.TrimSpace(wire.Emotion) == "" {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.http", errors.New("no emotion in response"))
	}

	return &types.AnalysisResult{
		Label:    wire.Emotion,
		AudioURL: b.resolveAudio(wire.AudioURL),
		Region:   wire.BoundingBox,
	}, nil
}

// resolveAudio turns relative audio references into absolute URLs.
func (b *HTTPBackend) resolveAudio(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.serviceURL.ResolveReference(u).String()
}

func buildMultipart(img client.Image) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := img.Filename
	if filename == "" {
		filename = "blob"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FileField, filename))
	if img.MIMEType != "" {
		header.Set("Content-Type", img.MIMEType)
	}

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write image part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// serverMessage extracts {"error": "..."} from a failure body when present.
func serverMessage(raw []byte) error {
	var wire wireResult
	if err := json.Unmarshal(raw, &wire); err == nil && wire.Error != "" {
		return errors.New(wire.Error)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return errors.New(text)
}
