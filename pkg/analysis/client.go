// Package analysis submits captured images to the remote analysis service.
package analysis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/nonverb/pkg/client"
	"github.com/menta2k/nonverb/pkg/raster"
	"github.com/menta2k/nonverb/pkg/types"
)

// Client encodes raster buffers and hands them to a backend.
type Client struct {
	backend client.Backend
	encode  raster.EncodeOptions
	logger  *zap.Logger
}

// NewClient creates an analysis client.
func NewClient(backend client.Backend, encode raster.EncodeOptions, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{backend: backend, encode: encode, logger: logger.Named("analysis")}
}

// Submit encodes buf and performs a single exchange with the backend. The
// result always carries a non-empty label; a missing label is reported as
// EmptyResponse. Submit never touches session state.
func (c *Client) Submit(ctx context.Context, buf *raster.Buffer) (*types.AnalysisResult, error) {
	data, mime, err := raster.Encode(buf.Frozen(), c.encode)
	if err != nil {
		// encode failures share the image codec kind
		return nil, types.NewError(types.KindDecodeError, "analysis.encode", err)
	}

	img := client.Image{
		Data:     data,
		MIMEType: mime,
		Filename: "capture." + raster.Extension(c.encode.Format),
	}

	c.logger.Debug("submitting image",
		zap.String("backend", c.backend.Name()),
		zap.String("mime", mime),
		zap.Int("bytes", len(data)),
	)

	result, err := c.backend.Analyze(ctx, img)
	if err != nil {
		return nil, err
	}
	if result == nil || strings.TrimSpace(result.Label) == "" {
		return nil, types.NewError(types.KindEmptyResponse, "analysis.submit", nil)
	}

	result.Label = strings.TrimSpace(result.Label)
	if result.Region != nil {
		if norm, ok := result.Region.Normalize(); ok {
			result.Region = &norm
		} else {
			result.Region = nil
		}
	}
	return result, nil
}
