package analysis

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/nonverb/pkg/client"
	"github.com/menta2k/nonverb/pkg/types"
)

func testImage() client.Image {
	return client.Image{Data: []byte("\xff\xd8fake-jpeg"), MIMEType: "image/jpeg", Filename: "capture.jpg"}
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *HTTPBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := NewHTTPBackend(srv.URL+"/analyze", 5*time.Second)
	require.NoError(t, err)
	return b
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotMethod, gotPath, gotFilename, gotType string
	var gotData []byte

	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		file, header, err := r.FormFile(FileField)
		if err == nil {
			gotFilename = header.Filename
			gotType = header.Header.Get("Content-Type")
			gotData, _ = io.ReadAll(file)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"emotion":"HAPPY","audioUrl":"/audio/happy.mp3","boundingBox":{"Left":0.2,"Top":0.1,"Width":0.3,"Height":0.4}}`)
	})

	res, err := b.Analyze(context.Background(), testImage())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/analyze", gotPath)
	assert.Equal(t, "capture.jpg", gotFilename)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, testImage().Data, gotData)

	assert.Equal(t, "HAPPY", res.Label)
	assert.Equal(t, b.serviceURL.Scheme+"://"+b.serviceURL.Host+"/audio/happy.mp3", res.AudioURL)
	require.NotNil(t, res.Region)
	assert.Equal(t, types.Region{Left: 0.2, Top: 0.1, Width: 0.3, Height: 0.4}, *res.Region)
}

func TestAnalyzeAbsoluteAudioAndNoRegion(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"emotion":  "SAD",
			"audioUrl": "http://cdn.example.com/sad.mp3",
		})
	})

	res, err := b.Analyze(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "SAD", res.Label)
	assert.Equal(t, "http://cdn.example.com/sad.mp3", res.AudioURL)
	assert.Nil(t, res.Region)
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    types.Kind
		message string
	}{
		{"server error with message", http.StatusInternalServerError, `{"error":"model crashed"}`, types.KindServerError, "model crashed"},
		{"bad request", http.StatusBadRequest, `{"error":"No file uploaded"}`, types.KindServerError, "No file uploaded"},
		{"plain text failure", http.StatusBadGateway, "upstream down", types.KindServerError, "upstream down"},
		{"empty body", http.StatusOK, "", types.KindEmptyResponse, ""},
		{"not json", http.StatusOK, "<html>", types.KindEmptyResponse, ""},
		{"missing emotion", http.StatusOK, `{"audioUrl":"/a.mp3"}`, types.KindEmptyResponse, ""},
		{"blank emotion", http.StatusOK, `{"emotion":"   "}`, types.KindEmptyResponse, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			res, err := b.Analyze(context.Background(), testImage())
			assert.Nil(t, res)
			require.Error(t, err)
			assert.Equal(t, tt.kind, types.KindOf(err))
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}

			var e *types.Error
			require.ErrorAs(t, err, &e)
			if tt.kind == types.KindServerError {
				assert.Equal(t, tt.status, e.StatusCode)
			}
		})
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b, err := NewHTTPBackend(url+"/analyze", time.Second)
	require.NoError(t, err)

	_, err = b.Analyze(context.Background(), testImage())
	assert.ErrorIs(t, err, types.ErrNetworkError)
}

func TestAnalyzeCanceled(t *testing.T) {
	release := make(chan struct{})
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := b.Analyze(ctx, testImage())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.KindNetworkError, types.KindOf(err))
}

func TestNewHTTPBackendValidation(t *testing.T) {
	b, err := NewHTTPBackend("", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceURL, b.serviceURL.String())
	assert.Equal(t, "http", b.Name())

	_, err = NewHTTPBackend("ftp://example.com/analyze", 0)
	assert.Error(t, err)

	_, err = NewHTTPBackend("://bad", 0)
	assert.Error(t, err)
}

func TestWithHTTPClient(t *testing.T) {
	b, err := NewHTTPBackend("http://analysis.invalid/analyze", 0)
	require.NoError(t, err)

	b.WithHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(stringReader(`{"emotion":"SURPRISED"}`)),
			Header:     make(http.Header),
		}, nil
	})})

	res, err := b.Analyze(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "SURPRISED", res.Label)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestAnalyzeOversizedBody(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"emotion":"HAPPY","padding":"`)
		io.WriteString(w, strings.Repeat("x", maxResponseBytes))
		io.WriteString(w, `"}`)
	})

	_, err := b.Analyze(context.Background(), testImage())
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.Equal(t, types.KindEmptyResponse, types.KindOf(err))
}

func TestAnalyzeBodyAtLimit(t *testing.T) {
	prefix := `{"emotion":"HAPPY","padding":"`
	suffix := `"}`
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, prefix)
		io.WriteString(w, strings.Repeat("x", maxResponseBytes-len(prefix)-len(suffix)))
		io.WriteString(w, suffix)
	})

	res, err := b.Analyze(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, "HAPPY", res.Label)
}
