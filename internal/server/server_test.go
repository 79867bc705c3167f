package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantavault/vanta/internal/config"
	"github.com/vantavault/vanta/internal/crypto"
	"github.com/vantavault/vanta/internal/events"
	"github.com/vantavault/vanta/internal/imaging"
	"github.com/vantavault/vanta/internal/models"
	"github.com/vantavault/vanta/internal/server"
	"github.com/vantavault/vanta/internal/storage"
	"github.com/vantavault/vanta/internal/vault"
)

const testPassword = "correct horse battery staple"

// testServer wraps the router and a session cookie captured from the
// last lifecycle response.
type testServer struct {
	t       *testing.T
	handler http.Handler
	session *http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := events.NewTestLogger(&bytes.Buffer{})
	store, err := storage.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	processor := imaging.NewProcessor(cfg.Pipeline.MaxConcurrent, cfg.Server.MaxUploadSize, logger)
	params := crypto.KDFParams{MemoryKiB: 1024, Iterations: 1, Parallelism: 1}
	v := vault.New(store, processor, params, logger)

	return &testServer{
		t:       t,
		handler: server.New(v, cfg, logger).Router(),
	}
}

// do issues one request, carrying the captured session cookie and
// updating it from any Set-Cookie in the response.
func (ts *testServer) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	ts.t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if ts.session != nil {
		req.AddCookie(ts.session)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	for _, c := range rr.Result().Cookies() {
		if c.Name == "vanta_session" {
			if c.MaxAge < 0 {
				ts.session = nil
			} else {
				ts.session = c
			}
		}
	}
	return rr
}

func (ts *testServer) doJSON(method, path string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	data, err := json.Marshal(body)
	require.NoError(ts.t, err)
	return ts.do(method, path, data, "application/json")
}

func (ts *testServer) setup() {
	ts.t.Helper()
	rr := ts.doJSON(http.MethodPost, "/api/setup", map[string]string{"password": testPassword})
	require.Equal(ts.t, http.StatusCreated, rr.Code)
}

func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 32, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartUpload builds a multipart body with one "file" part.
func multipartUpload(t *testing.T, data []byte, mime string) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="upload"`)
	header.Set("Content-Type", mime)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return buf.Bytes(), mw.FormDataContentType()
}

func (ts *testServer) upload(data []byte, mime string) models.ImageEntry {
	ts.t.Helper()

	body, contentType := multipartUpload(ts.t, data, mime)
	rr := ts.do(http.MethodPost, "/api/upload", body, contentType)
	require.Equal(ts.t, http.StatusCreated, rr.Code, rr.Body.String())

	var entry models.ImageEntry
	require.NoError(ts.t, json.Unmarshal(rr.Body.Bytes(), &entry))
	return entry
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) map[string]bool {
	t.Helper()
	var status map[string]bool
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return status
}

func TestServer_SetupFlow(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeStatus(t, rr)
	assert.False(t, status["initialized"])
	assert.False(t, status["unlocked"])
	assert.False(t, status["authenticated"])

	// Protected routes refuse before setup.
	rr = ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	ts.setup()
	require.NotNil(t, ts.session, "setup issues a session cookie")
	assert.True(t, ts.session.HttpOnly)

	rr = ts.do(http.MethodGet, "/api/status", nil, "")
	status = decodeStatus(t, rr)
	assert.True(t, status["initialized"])
	assert.True(t, status["unlocked"])
	assert.True(t, status["authenticated"])

	// Setup twice conflicts.
	rr = ts.doJSON(http.MethodPost, "/api/setup", map[string]string{"password": "other"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Empty password is invalid.
	ts2 := newTestServer(t)
	rr = ts2.doJSON(http.MethodPost, "/api/setup", map[string]string{"password": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_UnlockAndLock(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	rr := ts.do(http.MethodPost, "/api/lock", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Nil(t, ts.session, "lock clears the session cookie")

	rr = ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = ts.doJSON(http.MethodPost, "/api/unlock", map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = ts.doJSON(http.MethodPost, "/api/unlock", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, ts.session)

	rr = ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_StaleTokenAfterReunlock(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()
	stale := ts.session

	rr := ts.doJSON(http.MethodPost, "/api/unlock", map[string]string{"password": testPassword})
	require.Equal(t, http.StatusOK, rr.Code)

	// The fresh session works; the stale one is unauthorized.
	rr = ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	ts.session = stale
	rr = ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestServer_UploadAndRetrieve(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	data := makePNG(t, 50, 40)
	entry := ts.upload(data, "image/png")
	assert.True(t, models.ValidID(entry.ID))

	rr := ts.do(http.MethodGet, "/api/images/"+entry.ID+"/original", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "private, max-age=31536000, immutable", rr.Header().Get("Cache-Control"))
	assert.Equal(t, data, rr.Body.Bytes())

	rr = ts.do(http.MethodGet, "/api/images/"+entry.ID+"/thumbnail", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/webp", rr.Header().Get("Content-Type"))

	// Unknown variant names and unknown ids are 404.
	rr = ts.do(http.MethodGet, "/api/images/"+entry.ID+"/huge", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = ts.do(http.MethodGet, "/api/images/aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa/original", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_UploadRejections(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	// Not multipart.
	rr := ts.do(http.MethodPost, "/api/upload", []byte("raw"), "application/octet-stream")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Multipart without a file part.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	rr = ts.do(http.MethodPost, "/api/upload", buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unsupported type.
	body, contentType := multipartUpload(t, []byte("plain text"), "text/plain")
	rr = ts.do(http.MethodPost, "/api/upload", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_ListAndSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	a := ts.upload(makePNG(t, 20, 20), "image/png")
	b := ts.upload(makePNG(t, 24, 24), "image/png")

	rr := ts.doJSON(http.MethodPost, "/api/images/"+a.ID+"/tags", map[string]string{"tag": "sunset"})
	require.Equal(t, http.StatusOK, rr.Code)

	list := func(q string) []models.ImageEntry {
		rr := ts.do(http.MethodGet, "/api/images"+q, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var entries []models.ImageEntry
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
		return entries
	}

	all := list("")
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	matched := list("?q=sunset")
	require.Len(t, matched, 1)
	assert.Equal(t, a.ID, matched[0].ID)

	negated := list("?q=-sunset")
	require.Len(t, negated, 1)
	assert.Equal(t, b.ID, negated[0].ID)

	rr = ts.do(http.MethodGet, "/api/images?q=bad!tag", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_TagLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()
	entry := ts.upload(makePNG(t, 20, 20), "image/png")

	rr := ts.doJSON(http.MethodPost, "/api/images/"+entry.ID+"/tags", map[string]string{"tag": "Sunset"})
	require.Equal(t, http.StatusOK, rr.Code)

	var got models.ImageEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, []string{"sunset"}, got.Tags)

	rr = ts.doJSON(http.MethodPost, "/api/images/"+entry.ID+"/tags", map[string]string{"tag": "bad tag"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodGet, "/api/tags", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var tagList []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tagList))
	assert.Equal(t, []string{"sunset"}, tagList)

	rr = ts.doJSON(http.MethodPost, "/api/tags/rename", map[string]string{
		"old_tag": "sunset",
		"new_tag": "dusk",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var renamed map[string]int
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &renamed))
	assert.Equal(t, 1, renamed["renamed"])

	rr = ts.do(http.MethodDelete, "/api/images/"+entry.ID+"/tags?tag=dusk", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Empty(t, got.Tags)
}

func TestServer_DeleteImage(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()
	entry := ts.upload(makePNG(t, 20, 20), "image/png")

	rr := ts.do(http.MethodDelete, "/api/images/"+entry.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(http.MethodGet, "/api/images/"+entry.ID+"/original", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodDelete, "/api/images/"+entry.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_LinkedLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()
	cover := ts.upload(makePNG(t, 20, 20), "image/png")

	linkedData := makePNG(t, 24, 24)
	body, contentType := multipartUpload(t, linkedData, "image/png")
	rr := ts.do(http.MethodPost, "/api/images/"+cover.ID+"/linked", body, contentType)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var got models.ImageEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got.LinkedImages, 1)
	subID := got.LinkedImages[0].ID

	rr = ts.do(http.MethodGet, "/api/images/"+cover.ID+"/linked/"+subID+"/original", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, linkedData, rr.Body.Bytes())

	// Download is a zip once a linked set exists.
	rr = ts.do(http.MethodGet, "/api/images/"+cover.ID+"/download", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")

	rr = ts.do(http.MethodDelete, "/api/images/"+cover.ID+"/linked/"+subID, nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Empty(t, got.LinkedImages)

	rr = ts.do(http.MethodGet, "/api/images/"+cover.ID+"/linked/"+subID+"/original", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_DownloadWithoutLinked(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	data := makePNG(t, 20, 20)
	entry := ts.upload(data, "image/png")

	rr := ts.do(http.MethodGet, "/api/images/"+entry.ID+"/download", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf("attachment; filename=%q", entry.ID+".png"), rr.Header().Get("Content-Disposition"))
	assert.Equal(t, data, rr.Body.Bytes())
}

func TestServer_GateWithoutCookie(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	// Same vault, no cookie.
	ts.session = nil
	rr := ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	ts.session = &http.Cookie{Name: "vanta_session", Value: "forged"}
	rr = ts.do(http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestServer_LockRequiresSession(t *testing.T) {
	ts := newTestServer(t)
	ts.setup()

	session := ts.session
	ts.session = nil
	rr := ts.do(http.MethodPost, "/api/lock", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	ts.session = session
	rr = ts.do(http.MethodPost, "/api/logout", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	// Once locked, lock itself is refused like any gated route.
	rr = ts.do(http.MethodPost, "/api/lock", nil, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestServer_MalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(http.MethodPost, "/api/setup", []byte("{not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
