package client

import (
	"context"

	"github.com/menta2k/nonverb/pkg/types"
)

// Image is an encoded still ready for transmission.
type Image struct {
	Data     []byte
	MIMEType string
	// Filename is the name used for the upload part.
	Filename string
}

// Backend exchanges one encoded image with an analysis service. It performs
// exactly one attempt and reports failures with a types.Kind.
type Backend interface {
	Analyze(ctx context.Context, img Image) (*types.AnalysisResult, error)
	Name() string
}
