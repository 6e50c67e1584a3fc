package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/folio-cms/media/internal/util"
)

// SimpleProcessor validates and measures images without re-encoding them.
// Used where libvips is not installed.
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

func (p *SimpleProcessor) Process(data []byte, contentType string) (*ProcessResult, error) {
	contentType = util.NormalizeMIME(contentType)
	if !util.IsImageMIME(contentType) {
		detected := util.DetectContentType(data)
		if !util.IsImageMIME(detected) {
			return nil, fmt.Errorf("input is not a valid image format, detected: %s", detected)
		}
		contentType = detected
	}

	res := &ProcessResult{
		Data:           data,
		ContentType:    contentType,
		OriginalSize:   len(data),
		CompressedSize: len(data),
	}

	// webp has no stdlib decoder; dimensions stay zero
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if contentType == "image/webp" {
			return res, nil
		}
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	res.Width = cfg.Width
	res.Height = cfg.Height
	res.HasAlpha = format == "png" || format == "gif"
	return res, nil
}
