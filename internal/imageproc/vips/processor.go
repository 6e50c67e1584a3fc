// Package vips is the libvips-backed image processor. It needs cgo and
// libvips at build time, so callers that only need the interface import
// imageproc instead.
package vips

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/jpegli"
	"github.com/h2non/bimg"
	"github.com/rs/zerolog"

	"github.com/folio-cms/media/internal/imageproc"
	"github.com/folio-cms/media/internal/util"
)

type Processor struct {
	maxDimension int
	jpegQuality  int
	logger       zerolog.Logger
}

func NewProcessor(maxDimension, jpegQuality int, logger zerolog.Logger) *Processor {
	if maxDimension <= 0 {
		maxDimension = imageproc.DefaultMaxDimension
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 85
	}
	return &Processor{
		maxDimension: maxDimension,
		jpegQuality:  jpegQuality,
		logger:       logger.With().Str("component", "imageproc").Logger(),
	}
}

var _ imageproc.Processor = (*Processor)(nil)

func (p *Processor) Process(data []byte, contentType string) (*imageproc.ProcessResult, error) {
	originalSize := len(data)

	contentType = util.NormalizeMIME(contentType)
	if !util.IsImageMIME(contentType) {
		detected := util.DetectContentType(data)
		if !util.IsImageMIME(detected) {
			return nil, fmt.Errorf("input is not a valid image format, detected: %s", detected)
		}
		contentType = detected
	}

	metadata, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}

	unchanged := &imageproc.ProcessResult{
		Data:           data,
		ContentType:    contentType,
		Width:          metadata.Size.Width,
		Height:         metadata.Size.Height,
		HasAlpha:       metadata.Alpha,
		OriginalSize:   originalSize,
		CompressedSize: originalSize,
	}

	// Animated GIFs lose their frames in libvips, so leave them alone.
	if contentType == "image/gif" {
		return unchanged, nil
	}
	if originalSize <= imageproc.OneMB {
		p.logger.Debug().Int("size", originalSize).Msg("image under 1MB, skipping processing")
		return unchanged, nil
	}

	width, height := imageproc.FitWithin(metadata.Size.Width, metadata.Size.Height, p.maxDimension)
	if width == metadata.Size.Width && height == metadata.Size.Height {
		return unchanged, nil
	}

	p.logger.Info().
		Int("width", metadata.Size.Width).
		Int("height", metadata.Size.Height).
		Int("max", p.maxDimension).
		Msg("resizing image")

	var out []byte
	if contentType == "image/jpeg" || contentType == "image/jpg" {
		// resize losslessly, then let jpegli do the only lossy pass
		resized, err := bimg.NewImage(data).Process(bimg.Options{
			Width:   width,
			Height:  height,
			Type:    bimg.PNG,
			Quality: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resize image: %w", err)
		}
		out, err = p.encodeJPEG(resized)
		if err != nil {
			return nil, err
		}
		contentType = "image/jpeg"
	} else {
		out, err = bimg.NewImage(data).Process(bimg.Options{
			Width:         width,
			Height:        height,
			Type:          bimgType(contentType),
			Quality:       p.jpegQuality,
			StripMetadata: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resize image: %w", err)
		}
	}

	final, err := bimg.NewImage(out).Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read final image metadata: %w", err)
	}

	p.logger.Info().
		Int("original_size", originalSize).
		Int("compressed_size", len(out)).
		Int("width", final.Size.Width).
		Int("height", final.Size.Height).
		Msg("image processed")

	return &imageproc.ProcessResult{
		Data:           out,
		ContentType:    contentType,
		Width:          final.Size.Width,
		Height:         final.Size.Height,
		HasAlpha:       final.Alpha,
		OriginalSize:   originalSize,
		CompressedSize: len(out),
	}, nil
}

// encodeJPEG re-encodes with jpegli, falling back to libvips' own encoder.
func (p *Processor) encodeJPEG(input []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		p.logger.Warn().Err(err).Msg("standard decode failed, falling back to bimg")
		return p.fallbackJPEG(input)
	}

	var buf bytes.Buffer
	err = jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
		Quality:              p.jpegQuality,
		ProgressiveLevel:     2,
		OptimizeCoding:       true,
		AdaptiveQuantization: true,
		FancyDownsampling:    true,
		ChromaSubsampling:    image.YCbCrSubsampleRatio444,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("jpegli encoding failed, falling back to bimg")
		return p.fallbackJPEG(input)
	}
	return buf.Bytes(), nil
}

func (p *Processor) fallbackJPEG(input []byte) ([]byte, error) {
	out, err := bimg.NewImage(input).Process(bimg.Options{
		Type:           bimg.JPEG,
		Quality:        p.jpegQuality,
		StripMetadata:  true,
		Interpretation: bimg.InterpretationSRGB,
	})
	if err != nil {
		return nil, fmt.Errorf("jpeg encoding failed: %w", err)
	}
	return out, nil
}

func bimgType(contentType string) bimg.ImageType {
	switch contentType {
	case "image/png":
		return bimg.PNG
	case "image/webp":
		return bimg.WEBP
	default:
		return bimg.JPEG
	}
}
