package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/stickies/internal/apperr"
	"github.com/starford/stickies/internal/itemservice"
	"github.com/starford/stickies/internal/models"
	"github.com/starford/stickies/internal/storage"
	"github.com/starford/stickies/internal/taxonomy"
	"github.com/starford/stickies/internal/testutil"
	"github.com/starford/stickies/internal/uploads"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type env struct {
	router    http.Handler
	uploadDir string
}

// testEnv sets up a temp SQLite store, service, upload dir and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) env {
	t.Helper()
	return testEnvWithEvents(t, authToken, nil)
}

func testEnvWithEvents(t *testing.T, authToken string, events http.Handler) env {
	t.Helper()
	svc := itemservice.New(testutil.TestStore(t), 1, itemservice.WithLogger(testutil.QuietLogger()))

	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	router := NewRouter(svc, RouterConfig{
		AuthEnabled:  authToken != "",
		Token:        authToken,
		DefaultOwner: "u1",
		Events:       events,
		Uploads:      uploads.New(fs, 1<<10, "/uploads"),
	})
	return env{router: router, uploadDir: dir}
}

func do(t *testing.T, h http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createItem(t *testing.T, h http.Handler, in ItemRequest) models.Item {
	t.Helper()
	w := do(t, h, http.MethodPost, "/items", in)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var it models.Item
	if err := json.Unmarshal(w.Body.Bytes(), &it); err != nil {
		t.Fatal(err)
	}
	return it
}

func TestCreateAndGetItem(t *testing.T) {
	e := testEnv(t, "")
	it := createItem(t, e.router, ItemRequest{Title: "Hello", Body: "# Hello\nsee #proj/a", Tags: []string{"inbox"}})

	w := do(t, e.router, http.MethodGet, "/items/"+it.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got models.Item
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Hello" || got.OwnerID != "u1" {
		t.Errorf("item = %+v", got)
	}
	if strings.Join(got.Tags.Strings(), ",") != "inbox,proj/a" {
		t.Errorf("tags = %v", got.Tags.Strings())
	}
	if w.Header().Get("ETag") != `"`+got.Checksum+`"` {
		t.Errorf("ETag = %q", w.Header().Get("ETag"))
	}
}

func TestOwnerIsolation(t *testing.T) {
	e := testEnv(t, "")
	it := createItem(t, e.router, ItemRequest{Body: "mine"})

	w := do(t, e.router, http.MethodGet, "/items/"+it.ID, nil, OwnerHeader, "u2")
	if w.Code != http.StatusNotFound {
		t.Errorf("other owner get = %d, want 404", w.Code)
	}
}

func TestCreateInvalidTag(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPost, "/items", ItemRequest{Tags: []string{"a//b"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid tag = %d, want 400", w.Code)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	e := testEnv(t, "")
	createItem(t, e.router, ItemRequest{ID: "fixed", Body: "a"})
	w := do(t, e.router, http.MethodPost, "/items", ItemRequest{ID: "fixed", Body: "b"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	e := testEnv(t, "")
	created := createItem(t, e.router, ItemRequest{Body: "v1"})

	w := do(t, e.router, http.MethodPut, "/items/"+created.ID, ItemRequest{Body: "v2"}, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}

	// Stale checksum now.
	w = do(t, e.router, http.MethodPut, "/items/"+created.ID, ItemRequest{Body: "v3"}, "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}

	// No If-Match: no locking enforced.
	w = do(t, e.router, http.MethodPut, "/items/"+created.ID, ItemRequest{Body: "v4"})
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestUpdateItem_NotFound(t *testing.T) {
	e := testEnv(t, "")
	w := do(t, e.router, http.MethodPut, "/items/ghost", ItemRequest{Body: "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteItem(t *testing.T) {
	e := testEnv(t, "")
	it := createItem(t, e.router, ItemRequest{Body: "gone"})

	if w := do(t, e.router, http.MethodDelete, "/items/"+it.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/items/"+it.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestListItemsByTag(t *testing.T) {
	e := testEnv(t, "")
	createItem(t, e.router, ItemRequest{Body: "a", Tags: []string{"proj/a"}})
	createItem(t, e.router, ItemRequest{Body: "b", Tags: []string{"project"}})

	w := do(t, e.router, http.MethodGet, "/items?tag=proj", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var resp ItemListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1 (segment-aware match)", resp.Total)
	}

	if w := do(t, e.router, http.MethodGet, "/items?tag=a//b", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad tag filter = %d, want 400", w.Code)
	}
}

func TestDocumentAndPreview(t *testing.T) {
	e := testEnv(t, "")
	it := createItem(t, e.router, ItemRequest{Body: "# Title\n\n- one #x"})

	w := do(t, e.router, http.MethodGet, "/items/"+it.ID+"/document", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("document = %d", w.Code)
	}
	var doc map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	blocks := doc["document"].(map[string]any)["blocks"].([]any)
	if len(blocks) != 2 {
		t.Errorf("blocks = %d, want 2", len(blocks))
	}

	w = do(t, e.router, http.MethodGet, "/items/"+it.ID+"/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `<a class="tag" href="/tags/x">#x</a>`) {
		t.Errorf("preview = %q", w.Body.String())
	}
}

func TestTagEndpoints(t *testing.T) {
	e := testEnv(t, "")
	it := createItem(t, e.router, ItemRequest{Body: "a", Tags: []string{"proj/a", "proj/b"}})

	w := do(t, e.router, http.MethodPost, "/tags/rename", RenameTagRequest{From: "proj", To: "work"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename = %d, body = %s", w.Code, w.Body.String())
	}
	var mr MutationResponse
	_ = json.Unmarshal(w.Body.Bytes(), &mr)
	if mr.Affected != 1 {
		t.Errorf("affected = %d, want 1", mr.Affected)
	}

	if w := do(t, e.router, http.MethodPost, "/tags/rename", RenameTagRequest{From: "work", To: "work/x"}); w.Code != http.StatusConflict {
		t.Errorf("cyclic rename = %d, want 409", w.Code)
	}
	if w := do(t, e.router, http.MethodPost, "/tags/rename", RenameTagRequest{From: "work"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing target = %d, want 400", w.Code)
	}
	if w := do(t, e.router, http.MethodPost, "/tags/move", MoveTagRequest{Path: "work/b", Parent: ""}); w.Code != http.StatusOK {
		t.Errorf("move = %d", w.Code)
	}
	if w := do(t, e.router, http.MethodPost, "/tags/delete", DeleteTagRequest{Path: "b"}); w.Code != http.StatusOK {
		t.Errorf("delete = %d", w.Code)
	}

	w = do(t, e.router, http.MethodPost, "/tags/children", AddChildRequest{Parent: "work", Name: "c"})
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"persisted":false`) {
		t.Errorf("transient child = %d %s", w.Code, w.Body.String())
	}
	w = do(t, e.router, http.MethodPost, "/tags/children", AddChildRequest{Parent: "work", Name: "c", ItemID: it.ID})
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"persisted":true`) {
		t.Errorf("attached child = %d %s", w.Code, w.Body.String())
	}
	if w := do(t, e.router, http.MethodPost, "/tags/children", AddChildRequest{Parent: "work", Name: "a/b"}); w.Code != http.StatusBadRequest {
		t.Errorf("slash in name = %d, want 400", w.Code)
	}

	w = do(t, e.router, http.MethodGet, "/tags", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d", w.Code)
	}
	var tree TagTreeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tree)
	if len(tree.Roots) != 1 || tree.Roots[0].Name != "work" || len(tree.Roots[0].Children) != 2 {
		t.Errorf("tree = %s", w.Body.String())
	}

	w = do(t, e.router, http.MethodGet, "/tags/suggest?q=%23WO", nil)
	var sr SuggestResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sr)
	if len(sr.Candidates) != 2 {
		t.Errorf("suggest = %s", w.Body.String())
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := testEnv(t, "")
	createItem(t, e.router, ItemRequest{Body: "uniquetoken here"})

	w := do(t, e.router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("search results = %d, want 1", len(resp.Results))
	}

	if w := do(t, e.router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestWriteError_PersistErrorReportsAffected(t *testing.T) {
	cause := fmt.Errorf("save: %w", apperr.ErrConflict)
	err := fmt.Errorf("rename: %w", &taxonomy.PersistError{ItemID: "it-2", Affected: 3, Err: cause})

	w := httptest.NewRecorder()
	writeError(w, "rename tag", err)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500: %s", w.Code, w.Body.String())
	}
	var body errResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Affected == nil || *body.Affected != 3 {
		t.Errorf("affected = %v, want 3", body.Affected)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := testEnv(t, "secret123")

	if w := do(t, e.router, http.MethodGet, "/items", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/items", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := do(t, e.router, http.MethodGet, "/items", nil, "Authorization", "Bearer secret123"); w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestOwnerMiddleware_NoOwner(t *testing.T) {
	svc := itemservice.New(testutil.TestStore(t), 1)
	router := NewRouter(svc, RouterConfig{})
	if w := do(t, router, http.MethodGet, "/items", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no owner = %d, want 400", w.Code)
	}
}

// SSE endpoint auth tests.

func sseStub() http.Handler {
	// Writes headers and blocks until context done.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnvWithEvents(t, "secret", sseStub())
	if w := do(t, e.router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnvWithEvents(t, "tok", sseStub())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// Upload tests.

func uploadFile(t *testing.T, router http.Handler, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadAndServeImage(t *testing.T) {
	e := testEnv(t, "")

	w := uploadFile(t, e.router, "cat.png", "image/png", pngHeader)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.HasPrefix(resp.URL, "/uploads/") || resp.Size != len(pngHeader) {
		t.Errorf("resp = %+v", resp)
	}

	name := strings.TrimPrefix(resp.URL, "/uploads/")
	data, err := os.ReadFile(filepath.Join(e.uploadDir, name))
	if err != nil {
		t.Fatalf("file not on disk: %v", err)
	}
	if !bytes.Equal(data, pngHeader) {
		t.Errorf("content mismatch")
	}

	fs, _ := storage.NewFS(e.uploadDir)
	r := chi.NewRouter()
	r.Get("/uploads/{name}", NewUploadHandler(uploads.New(fs, 0, "/uploads")).ServeFile)
	req := httptest.NewRequest(http.MethodGet, resp.URL, nil)
	sw := httptest.NewRecorder()
	r.ServeHTTP(sw, req)
	if sw.Code != http.StatusOK || sw.Header().Get("Content-Type") != "image/png" {
		t.Errorf("serve = %d %q", sw.Code, sw.Header().Get("Content-Type"))
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	e := testEnv(t, "")
	if w := uploadFile(t, e.router, "x.txt", "text/plain", []byte("hello")); w.Code != http.StatusBadRequest {
		t.Errorf("text upload = %d, want 400", w.Code)
	}
	if w := uploadFile(t, e.router, "big.png", "image/png", append(pngHeader, make([]byte, 2<<10)...)); w.Code != http.StatusBadRequest {
		t.Errorf("oversized upload = %d, want 400", w.Code)
	}
}

func TestUpload_MissingFileField(t *testing.T) {
	e := testEnv(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("wrong", "data")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestServeUpload_TraversalBlocked(t *testing.T) {
	fs, _ := storage.NewFS(t.TempDir())
	r := chi.NewRouter()
	r.Get("/uploads/{name}", NewUploadHandler(uploads.New(fs, 0, "/uploads")).ServeFile)

	for _, name := range []string{"../secret.md", "..%2F..%2Fetc%2Fpasswd", "nope.png"} {
		req := httptest.NewRequest(http.MethodGet, "/uploads/"+name, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			t.Errorf("%q should not return 200", name)
		}
	}
}
