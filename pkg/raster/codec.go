package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	_ "image/gif" // register GIF decoder

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Output formats understood by Encode and Save.
const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// MIME types for the output formats.
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeWebP = "image/webp"
)

// DefaultQuality is the JPEG/WebP quality used when none is configured.
const DefaultQuality = 85

// EncodeOptions controls how a buffer is turned into bytes for the analysis
// service.
type EncodeOptions struct {
	// Format is one of jpg, png, webp. Empty means jpg.
	Format string
	// Quality applies to jpg and webp (1-100).
	Quality int
	// MaxDim limits the long side in pixels, 0 keeps the native size.
	MaxDim int
}

// DefaultEncodeOptions matches what a browser canvas produces for
// toBlob("image/jpeg").
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{Format: FormatJPEG, Quality: DefaultQuality}
}

// Decode decodes arbitrary image bytes. The second return value is the
// detected format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}

	// x/image/webp does not handle every variant, fall back to libwebp
	if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return img, "webp", nil
	}

	return nil, "", fmt.Errorf("failed to decode image: %w", err)
}

// Encode converts img into a transmissible representation and returns the
// bytes together with their MIME type.
func Encode(img image.Image, opts EncodeOptions) ([]byte, string, error) {
	if opts.MaxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > opts.MaxDim || h > opts.MaxDim {
			if w >= h {
				img = imaging.Resize(img, opts.MaxDim, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, opts.MaxDim, imaging.Lanczos)
			}
		}
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	switch strings.ToLower(opts.Format) {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), MIMETypePNG, nil
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), MIMETypeWebP, nil
	case "", FormatJPEG, "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), MIMETypeJPEG, nil
	default:
		return nil, "", fmt.Errorf("unsupported encode format: %s", opts.Format)
	}
}

// Save writes img to path in the given format.
func Save(img image.Image, path, format string, quality int, lossless bool) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	switch strings.ToLower(format) {
	case FormatWebP:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case FormatPNG:
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Extension returns the file extension for a format.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return "jpg"
	}
}
