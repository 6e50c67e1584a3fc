package media

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/folio-cms/media/internal/resolver"
	"github.com/folio-cms/media/internal/storage"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	svc := newTestService(t, nil)
	prober := resolver.NewProber(svc.store.URLs(), zerolog.Nop())
	return NewHandler(svc, prober, zerolog.Nop()), svc
}

func multipartRequest(t *testing.T, method string, fields map[string]string, fileName string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, "/api/media", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHandleUpload(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleUpload(rec, multipartRequest(t, http.MethodPost, map[string]string{"type": "project"}, "shot.png", pngImage(t, 10, 10)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Regexp(t, `^project-\d+-[a-z0-9]{6}\.png$`, body["key"])
	assert.True(t, strings.HasPrefix(body["url"].(string), "https://images.example.com/"))
	assert.Contains(t, body, "alternates")
}

func TestHandleUpload_BadInput(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name   string
		fields map[string]string
		file   string
		data   []byte
	}{
		{"unknown type", map[string]string{"type": "banner"}, "a.png", pngImage(t, 2, 2)},
		{"no file", map[string]string{"type": "profile"}, "", nil},
		{"not an image", nil, "notes.txt", []byte("just some text")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleUpload(rec, multipartRequest(t, http.MethodPost, tt.fields, tt.file, tt.data))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleUpload_OversizedBody(t *testing.T) {
	h, _ := newTestHandler(t)

	data := bytes.Repeat([]byte{0xAB}, 12<<20)
	rec := httptest.NewRecorder()
	h.HandleUpload(rec, multipartRequest(t, http.MethodPost, map[string]string{"type": "project"}, "huge.png", data))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "10MB")
}

func TestHandleReplace(t *testing.T) {
	h, svc := newTestHandler(t)
	old := svc.UploadImage(context.Background(), UploadRequest{Data: pngImage(t, 4, 4), ContentType: "image/png", Type: storage.ImageProfile})
	require.True(t, old.Success, old.Error)

	rec := httptest.NewRecorder()
	h.HandleReplace(rec, multipartRequest(t, http.MethodPut,
		map[string]string{"type": "profile", "oldUrl": old.URL}, "me.png", pngImage(t, 8, 8)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, old.Key, body["replacedKey"])
	assert.NotContains(t, body, "warning")
}

func TestHandleImport(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.HandleImport(rec, httptest.NewRequest(http.MethodPost, "/api/media/import", strings.NewReader(`{"dataUri":"data:text/plain,hi"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleImport(rec, httptest.NewRequest(http.MethodPost, "/api/media/import", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleImport(rec, httptest.NewRequest(http.MethodPost, "/api/media/import", strings.NewReader(`{"url":"ftp://example.com/a.png"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeleteAndExists(t *testing.T) {
	h, svc := newTestHandler(t)
	up := svc.UploadImage(context.Background(), UploadRequest{Data: pngImage(t, 4, 4), ContentType: "image/png"})
	require.True(t, up.Success, up.Error)

	rec := httptest.NewRecorder()
	h.HandleExists(rec, httptest.NewRequest(http.MethodGet, "/api/media/exists?key="+up.Key, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["exists"])

	rec = httptest.NewRecorder()
	h.HandleDelete(rec, httptest.NewRequest(http.MethodDelete, "/api/media?url="+up.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, up.Key, decode(t, rec)["key"])

	rec = httptest.NewRecorder()
	h.HandleExists(rec, httptest.NewRequest(http.MethodGet, "/api/media/exists?url="+up.URL, nil))
	assert.Equal(t, false, decode(t, rec)["exists"])

	rec = httptest.NewRecorder()
	h.HandleDelete(rec, httptest.NewRequest(http.MethodDelete, "/api/media?url=https://cdn.other.net/x.png", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleDelete(rec, httptest.NewRequest(http.MethodDelete, "/api/media", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListAndCopy(t *testing.T) {
	h, svc := newTestHandler(t)
	up := svc.UploadImage(context.Background(), UploadRequest{Data: pngImage(t, 4, 4), ContentType: "image/png", Type: storage.ImageAbout})
	require.True(t, up.Success, up.Error)

	rec := httptest.NewRecorder()
	h.HandleCopy(rec, httptest.NewRequest(http.MethodPost, "/api/media/copy",
		strings.NewReader(`{"sourceKey":"`+up.Key+`"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.HandleCopy(rec, httptest.NewRequest(http.MethodPost, "/api/media/copy",
		strings.NewReader(`{"sourceKey":"about-1-aaaaaa.png"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/media?prefix=about-", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/api/media?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleURLsAndResolve(t *testing.T) {
	h, _ := newTestHandler(t)
	key := "project-1700000000000-a1b2c3.png"

	rec := httptest.NewRecorder()
	h.HandleURLs(rec, httptest.NewRequest(http.MethodGet, "/api/media/urls?key="+key, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "https://images.example.com/"+key, body["url"])
	candidates := body["candidates"].(map[string]any)
	assert.Equal(t, "https://pub-0123456789.r2.dev/"+key, candidates["devDomain"])

	external := "https://avatars.githubusercontent.com/u/1"
	rec = httptest.NewRecorder()
	h.HandleResolve(rec, httptest.NewRequest(http.MethodGet, "/api/media/resolve?url="+external, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, external, decode(t, rec)["url"])
}
