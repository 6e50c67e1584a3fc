package storage

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/folio-cms/media/internal/util"
)

// ImageType is the content section an upload belongs to. It prefixes the key.
type ImageType string

const (
	ImageProfile       ImageType = "profile"
	ImageProject       ImageType = "project"
	ImageCertification ImageType = "certification"
	ImageAbout         ImageType = "about"
	ImageGeneral       ImageType = "general"
)

var imageTypes = map[ImageType]bool{
	ImageProfile:       true,
	ImageProject:       true,
	ImageCertification: true,
	ImageAbout:         true,
	ImageGeneral:       true,
}

// ParseImageType maps form input to an ImageType. Empty input means general.
func ParseImageType(s string) (ImageType, error) {
	t := ImageType(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return ImageGeneral, nil
	}
	if !imageTypes[t] {
		return "", fmt.Errorf("unknown image type %q", s)
	}
	return t, nil
}

var keyPattern = regexp.MustCompile(`^(profile|project|certification|about|general)-\d+-[a-z0-9]{6}\.(jpg|png|webp|gif)$`)

// IsGeneratedKey reports whether key has the <type>-<epoch-ms>-<random>.<ext> shape.
func IsGeneratedKey(key string) bool {
	return keyPattern.MatchString(key)
}

// GenerateKey builds a new object key. The extension follows the content
// type; the file name only decides it when the content type is not an image.
func GenerateKey(t ImageType, fileName, contentType string, now time.Time) string {
	ext := util.GetImageExtension(contentType)
	if !util.IsImageMIME(contentType) {
		if fromName := util.ExtensionFromFilename(fileName); fromName != "" {
			ext = fromName
		}
	}
	return fmt.Sprintf("%s-%d-%s.%s", t, now.UnixMilli(), randomSuffix(), ext)
}

// KeyImageType reads the image type prefix of a generated key, or general.
func KeyImageType(key string) ImageType {
	if prefix, _, ok := strings.Cut(key, "-"); ok && imageTypes[ImageType(prefix)] {
		return ImageType(prefix)
	}
	return ImageGeneral
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
