package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dataloom/internal/ai"
	"github.com/KaramelBytes/dataloom/internal/analysis"
	"github.com/KaramelBytes/dataloom/internal/chat"
	"github.com/KaramelBytes/dataloom/internal/metadata"
	"github.com/KaramelBytes/dataloom/internal/storage"
)

// memStore is an in-memory ObjectStore double.
type memStore struct {
	objects map[string][]byte
	nextKey string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, nextKey: "key-1.csv"}
}

func (m *memStore) Upload(_ context.Context, r io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := m.nextKey
	m.objects[key] = data
	return key, nil
}

func (m *memStore) UploadCleaned(_ context.Context, r io.Reader, _ int64, originalKey string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := "cleaned_" + originalKey
	m.objects[key] = data
	return key, nil
}

func (m *memStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, ok := m.objects[key]; !ok {
		return "", storage.ErrNotFound
	}
	return "https://example.com/" + key, nil
}

type fakeAsker struct {
	reply *chat.Reply
	err   error
}

func (f *fakeAsker) Ask(_ context.Context, _ *analysis.Result, _ string, _ []chat.Turn) (*chat.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func newTestServer(t *testing.T, asker Asker) (*Server, *memStore) {
	t.Helper()
	meta, err := metadata.Open(filepath.Join(t.TempDir(), "files.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })
	objects := newMemStore()
	srv := New(objects, meta, asker, Options{}, nil)
	return srv, objects
}

func uploadCSV(t *testing.T, srv *Server, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestUploadAnalyzesAndPersists(t *testing.T) {
	srv, objects := newTestServer(t, &fakeAsker{})
	rr := uploadCSV(t, srv, "data.csv", "x,city\n1,NY\n2,LA\n100,NY\n")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "data.csv", res.Filename)
	assert.Equal(t, "key-1.csv", res.FileKey)
	assert.Equal(t, 3, res.TotalRows)
	assert.Equal(t, 2, res.TotalColumns)

	// Raw object was stored before analysis.
	assert.Contains(t, objects.objects, "key-1.csv")

	// Metadata is queryable through the list endpoint.
	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	lr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(lr, req)
	require.Equal(t, http.StatusOK, lr.Code)
	var listed struct {
		Files []metadata.FileRecord `json:"files"`
	}
	require.NoError(t, json.Unmarshal(lr.Body.Bytes(), &listed))
	require.Len(t, listed.Files, 1)
	assert.Equal(t, "data.csv", listed.Files[0].Filename)
	assert.Equal(t, 3, listed.Files[0].Rows)
}

func TestUploadRejectsMalformedCSV(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	rr := uploadCSV(t, srv, "bad.csv", "a,b\n\"unterminated,1\n")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "detail")
}

func TestUploadRejectsEmptyTable(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	rr := uploadCSV(t, srv, "empty.csv", "a,b,c\n")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadMissingFileField(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAnalyzeStoredObject(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	up := uploadCSV(t, srv, "data.csv", "x,y\n1,2\n2,4\n3,6\n")
	require.Equal(t, http.StatusOK, up.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/analyze/key-1.csv", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var res analysis.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "data.csv", res.Filename)
	require.NotNil(t, res.Correlations)
	assert.InDelta(t, 1.0, res.Correlations.Matrix[0][1], 1e-9)
}

func TestAnalyzeMissingKey(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	req := httptest.NewRequest(http.MethodGet, "/api/analyze/nope.csv", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFileURL(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	up := uploadCSV(t, srv, "data.csv", "x\n1\n")
	require.Equal(t, http.StatusOK, up.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/files/key-1.csv", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "https://example.com/key-1.csv", body["download_url"])
}

func TestDeleteFile(t *testing.T) {
	srv, objects := newTestServer(t, &fakeAsker{})
	up := uploadCSV(t, srv, "data.csv", "x\n1\n")
	require.Equal(t, http.StatusOK, up.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/files/key-1.csv", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, objects.objects, "key-1.csv")

	// Second delete reports not found.
	rr2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr2, httptest.NewRequest(http.MethodDelete, "/api/files/key-1.csv", nil))
	assert.Equal(t, http.StatusNotFound, rr2.Code)
}

func TestChat(t *testing.T) {
	asker := &fakeAsker{reply: &chat.Reply{Text: "The mean of x is 2."}}
	srv, _ := newTestServer(t, asker)
	up := uploadCSV(t, srv, "data.csv", "x\n1\n2\n3\n")
	require.Equal(t, http.StatusOK, up.Code)

	body := `{"file_key":"key-1.csv","question":"what is the mean of x?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var reply chat.Reply
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reply))
	assert.Equal(t, "The mean of x is 2.", reply.Text)
}

func TestChatValidatesRequest(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"question":"hi"}`))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatMapsProviderErrorsTo502(t *testing.T) {
	apiErr := &ai.APIError{StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	asker := &fakeAsker{err: fmt.Errorf("generate: %w", &ai.ServerError{APIError: apiErr})}
	srv, _ := newTestServer(t, asker)
	up := uploadCSV(t, srv, "data.csv", "x\n1\n")
	require.Equal(t, http.StatusOK, up.Code)

	body := `{"file_key":"key-1.csv","question":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestCleanUploadsCleanedObject(t *testing.T) {
	srv, objects := newTestServer(t, &fakeAsker{})
	up := uploadCSV(t, srv, "data.csv", "x,city\n1,NY\n,LA\n3,NY\n")
	require.Equal(t, http.StatusOK, up.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/clean/key-1.csv", strings.NewReader(`{"strategy":"auto"}`))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		CleanedKey string          `json:"cleaned_key"`
		Analysis   analysis.Result `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "cleaned_key-1.csv", body.CleanedKey)
	assert.Contains(t, objects.objects, "cleaned_key-1.csv")

	x := body.Analysis.Column("x")
	require.NotNil(t, x)
	require.NotNil(t, x.Numeric)
	assert.Equal(t, 0, x.Numeric.Missing)
}

func TestCleanFillWithoutValue(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	up := uploadCSV(t, srv, "data.csv", "x\n1\n\n")
	require.Equal(t, http.StatusOK, up.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/clean/key-1.csv", strings.NewReader(`{"strategy":"fill"}`))
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeAsker{})
	req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
