package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/folio-cms/media/internal/config"
)

const sampleKey = "project-1700000000000-a1b2c3.png"

func TestURLManager_Builders(t *testing.T) {
	m := NewURLManager(testR2Config())

	u, ok := m.CustomDomainURL(sampleKey)
	assert.True(t, ok)
	assert.Equal(t, "https://images.example.com/"+sampleKey, u)

	u, ok = m.DirectURL(sampleKey)
	assert.True(t, ok)
	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com/portfolio/"+sampleKey, u)

	u, ok = m.DevDomainURL("/" + sampleKey)
	assert.True(t, ok)
	assert.Equal(t, "https://pub-0123456789.r2.dev/"+sampleKey, u)
}

func TestURLManager_UnconfiguredBases(t *testing.T) {
	m := NewURLManager(config.R2Config{})

	_, ok := m.CustomDomainURL(sampleKey)
	assert.False(t, ok)
	_, ok = m.DirectURL(sampleKey)
	assert.False(t, ok)
	_, ok = m.DevDomainURL(sampleKey)
	assert.False(t, ok)
	_, ok = m.PublicURL(sampleKey, true)
	assert.False(t, ok)

	assert.Equal(t, CandidateURLs{}, m.AllPossibleURLs(sampleKey))
	assert.Empty(t, m.AllPossibleURLs(sampleKey).Ordered())
}

func TestURLManager_PublicURL(t *testing.T) {
	full := NewURLManager(testR2Config())
	u, _ := full.PublicURL(sampleKey, false)
	assert.Equal(t, "https://images.example.com/"+sampleKey, u)

	cfg := testR2Config()
	cfg.CustomDomain = ""
	noCustom := NewURLManager(cfg)

	u, _ = noCustom.PublicURL(sampleKey, true)
	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com/portfolio/"+sampleKey, u)

	u, _ = noCustom.PublicURL(sampleKey, false)
	assert.Equal(t, "https://pub-0123456789.r2.dev/"+sampleKey, u)
}

func TestURLManager_NormalizesBases(t *testing.T) {
	m := NewURLManager(config.R2Config{
		CustomDomain: "images.example.com/",
		AccountID:    "abc123",
		BucketName:   "portfolio",
	})

	u, _ := m.CustomDomainURL(sampleKey)
	assert.Equal(t, "https://images.example.com/"+sampleKey, u)

	u, _ = m.DirectURL(sampleKey)
	assert.Equal(t, "https://abc123.r2.cloudflarestorage.com/portfolio/"+sampleKey, u)
}

func TestURLManager_AllPossibleURLsOrder(t *testing.T) {
	m := NewURLManager(testR2Config())

	ordered := m.AllPossibleURLs(sampleKey).Ordered()
	if assert.Len(t, ordered, 3) {
		assert.Equal(t, URLCustomDomain, ordered[0].Kind)
		assert.Equal(t, URLDirect, ordered[1].Kind)
		assert.Equal(t, URLDevDomain, ordered[2].Kind)
	}
}

func TestExtractObjectKey_RoundTrip(t *testing.T) {
	m := NewURLManager(testR2Config())

	for i := 0; i < 20; i++ {
		key := GenerateKey(ImageProject, "photo.png", "image/png", time.Now())
		u, ok := m.PublicURL(key, true)
		assert.True(t, ok)

		got, ok := m.ExtractObjectKey(u)
		assert.True(t, ok)
		assert.Equal(t, key, got)
	}
}

func TestExtractObjectKey_EveryBase(t *testing.T) {
	m := NewURLManager(testR2Config())
	c := m.AllPossibleURLs(sampleKey)

	for _, u := range []string{c.CustomDomain, c.Direct, c.DevDomain} {
		got, ok := m.ExtractObjectKey(u)
		assert.True(t, ok, u)
		assert.Equal(t, sampleKey, got, u)
	}
}

func TestExtractObjectKey_Forms(t *testing.T) {
	m := NewURLManager(testR2Config())

	tests := []struct {
		name  string
		input string
		key   string
		ok    bool
	}{
		{"query string", "https://images.example.com/" + sampleKey + "?v=2&w=300", sampleKey, true},
		{"fragment", "https://pub-0123456789.r2.dev/" + sampleKey + "#top", sampleKey, true},
		{"host case", "https://IMAGES.example.com/" + sampleKey, sampleKey, true},
		{"bare key", sampleKey, sampleKey, true},
		{"relative path", "/" + sampleKey, sampleKey, true},
		{"relative with query", "/" + sampleKey + "?x=1", sampleKey, true},
		{"nested key", "https://images.example.com/projects/2024/" + sampleKey, "projects/2024/" + sampleKey, true},
		{"external url", "https://cdn.other.com/" + sampleKey, "", false},
		{"direct without bucket", "https://abc123.r2.cloudflarestorage.com/" + sampleKey, "", false},
		{"base only", "https://images.example.com/", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ExtractObjectKey(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.key, got)
		})
	}
}
