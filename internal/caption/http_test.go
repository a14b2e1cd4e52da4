package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/caption-forge/internal/i18n"
	"github.com/yourusername/caption-forge/internal/translate"
)

type stubScheduler struct {
	opts BatchOptions
	err  error
}

func (s *stubScheduler) ScheduleTranslateAll(ctx context.Context, opts BatchOptions) (string, error) {
	s.opts = opts
	if s.err != nil {
		return "", s.err
	}
	return "job-123", nil
}

func newTestRouter(t *testing.T, svc *Service, scheduler BatchScheduler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	msgs := i18n.New("zh", quietLogger())
	tmpl, err := Templates()
	if err != nil {
		t.Fatalf("Templates returned error: %v", err)
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	router.GET("/", IndexHandler(svc, msgs, PageDefaults{From: "auto", To: "zh"}, quietLogger()))
	router.GET("/api/images", ImagesHandler(svc, msgs))
	router.POST("/upload", UploadHandler(svc, msgs, quietLogger()))
	router.GET("/get_caption/:image", GetCaptionHandler(svc, msgs))
	router.POST("/save_caption/:image", SaveCaptionHandler(svc, msgs))
	router.POST("/translate", TranslateHandler(svc, msgs))
	router.POST("/clear_all", ClearHandler(svc, msgs, quietLogger()))
	router.GET("/uploads/:filename", FileHandler(svc, msgs))
	router.POST("/api/jobs/translate", TranslateAllHandler(svc, scheduler, msgs))
	return router
}

func uploadRequest(t *testing.T, files ...uploadFile) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		fw, err := writer.CreateFormFile("files", f.name)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func TestUploadRedirectsAndShowsFlash(t *testing.T) {
	svc, dir := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t,
		uploadFile{"2.png", pngData},
		uploadFile{"bad.zip", []byte("PK")},
	))
	if rec.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if _, err := os.Stat(filepath.Join(dir, "2.png")); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	page := httptest.NewRecorder()
	router.ServeHTTP(page, req)
	if page.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", page.Code)
	}
	body := page.Body.String()
	for _, want := range []string{"2.png", "/uploads/2.png", "共 1 张图片", "已上传 1 个文件", "bad.zip"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q:\n%s", want, body)
		}
	}
}

func TestUploadFlashListsLimitedSkippedNames(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	files := make([]uploadFile, 0, 15)
	for i := 0; i < 15; i++ {
		files = append(files, uploadFile{fmt.Sprintf("skipped-file-%02d.zip", i), []byte("PK")})
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, files...))
	if rec.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range rec.Result().Cookies() {
		req.AddCookie(ck)
	}
	page := httptest.NewRecorder()
	router.ServeHTTP(page, req)
	body := page.Body.String()
	for _, want := range []string{"已跳过 15 个文件", "skipped-file-00.zip", "skipped-file-09.zip", "…"} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "skipped-file-10.zip") {
		t.Fatalf("flash lists more than %d names:\n%s", maxFlashNames, body)
	}
}

func TestSkippedNames(t *testing.T) {
	if got := skippedNames([]SkippedFile{{Name: "a.zip"}, {Name: "b.zip"}}); got != "a.zip, b.zip" {
		t.Fatalf("skippedNames = %q", got)
	}
	many := make([]SkippedFile, maxFlashNames+5)
	for i := range many {
		many[i] = SkippedFile{Name: "x.zip"}
	}
	got := skippedNames(many)
	if strings.Count(got, "x.zip") != maxFlashNames || !strings.HasSuffix(got, ", …") {
		t.Fatalf("skippedNames = %q", got)
	}
}

func TestUploadWithoutFiles(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t))
	if rec.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestImagesHandler(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.SaveUploads(context.Background(), multipartFiles(t,
		uploadFile{"10.png", pngData},
		uploadFile{"9.png", pngData},
		uploadFile{"9.txt", []byte("x")},
	)); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images", nil))
	payload := decodeJSON(t, rec)
	images, _ := payload["images"].([]any)
	if len(images) != 2 || images[0] != "9.png" || images[1] != "10.png" {
		t.Fatalf("unexpected images: %#v", payload["images"])
	}
	if payload["count"] != float64(2) {
		t.Fatalf("unexpected count: %#v", payload["count"])
	}
}

func TestSaveThenGetCaption(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/save_caption/5.png", `{"content":"a red fox"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["success"] != true {
		t.Fatalf("unexpected payload: %#v", payload)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_caption/5.png", nil))
	if payload := decodeJSON(t, rec); payload["caption"] != "a red fox" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestGetCaptionMissingIsEmpty(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get_caption/none.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if payload := decodeJSON(t, rec); payload["caption"] != "" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestSaveCaptionInvalidBody(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/save_caption/5.png", `not json`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if payload := decodeJSON(t, rec); payload["success"] != false {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestTranslateHandler(t *testing.T) {
	stub := &stubTranslator{}
	svc, _ := newTestService(t, stub)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/translate", `{"text":"a cat","src":"en","dest":"ja"}`))
	payload := decodeJSON(t, rec)
	if payload["translated"] != "[ja]a cat" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if _, ok := payload["error"]; ok {
		t.Fatalf("unexpected error flag: %#v", payload)
	}
}

func TestTranslateHandlerFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"api error", &translate.APIError{Provider: "baidu", Code: "54001", Message: "Invalid Sign"}, "翻译失败: Invalid Sign"},
		{"no result", translate.ErrNoResult, "未找到翻译结果"},
		{"breaker open", translate.ErrUnavailable, "翻译服务暂时不可用，请稍后再试"},
		{"transport", errors.New("dial tcp: connection refused"), "翻译请求失败: dial tcp: connection refused"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubTranslator{fn: func(text, from, to string) (string, error) { return "", tc.err }}
			svc, _ := newTestService(t, stub)
			router := newTestRouter(t, svc, nil)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/translate", `{"text":"a cat"}`))
			if rec.Code != http.StatusOK {
				t.Fatalf("unexpected status: %d", rec.Code)
			}
			payload := decodeJSON(t, rec)
			if payload["translated"] != tc.want || payload["error"] != true {
				t.Fatalf("unexpected payload: %#v", payload)
			}
		})
	}
}

func TestTranslateHandlerEnglishMessages(t *testing.T) {
	stub := &stubTranslator{fn: func(text, from, to string) (string, error) { return "", translate.ErrNoResult }}
	svc, _ := newTestService(t, stub)
	router := newTestRouter(t, svc, nil)

	req := jsonRequest(http.MethodPost, "/translate", `{"text":"猫"}`)
	req.Header.Set("Accept-Language", "en")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if payload := decodeJSON(t, rec); payload["translated"] != "No translation found" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestClearHandler(t *testing.T) {
	svc, dir := newTestService(t, nil)
	if _, err := svc.SaveUploads(context.Background(), multipartFiles(t, uploadFile{"1.png", pngData})); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clear_all", nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("files remain after clear: %d", len(entries))
	}
}

func TestFileHandler(t *testing.T) {
	svc, _ := newTestService(t, nil)
	if _, err := svc.SaveUploads(context.Background(), multipartFiles(t, uploadFile{"1.png", pngData})); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/1.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), pngData) {
		t.Fatal("unexpected body")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status for missing file: %d", rec.Code)
	}
	if payload := decodeJSON(t, rec); payload["code"] != CodeNotFound {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestTranslateAllHandlerWithoutQueue(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := newTestRouter(t, svc, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/jobs/translate", `{"dest":"en"}`))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if payload := decodeJSON(t, rec); payload["code"] != CodeQueueDisabled {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestTranslateAllHandlerSchedules(t *testing.T) {
	svc, _ := newTestService(t, nil)
	scheduler := &stubScheduler{}
	router := newTestRouter(t, svc, scheduler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/jobs/translate", `{"dest":"en","overwrite":true}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if payload := decodeJSON(t, rec); payload["jobId"] != "job-123" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
	if scheduler.opts.From != "auto" || scheduler.opts.To != "en" || !scheduler.opts.Overwrite {
		t.Fatalf("unexpected options: %#v", scheduler.opts)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/api/jobs/translate", `{"dest":"auto"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status for invalid dest: %d", rec.Code)
	}
}
