package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"go-photo-search/internal/config"
	apperrors "go-photo-search/internal/errors"
	"go-photo-search/internal/observer"
	"go-photo-search/internal/repository"
	"go-photo-search/internal/search"
	"go-photo-search/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticFetcher map[string][]byte

func (f staticFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if data, ok := f[location]; ok {
		return data, nil
	}
	return nil, apperrors.NewFetchError("client error: status code 404", nil)
}

func uniformPNG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestHandler(t *testing.T, candidates []models.CandidateImage, fetcher staticFetcher) (http.Handler, *observer.MetricsObserver) {
	t.Helper()
	return newLimitedHandler(t, candidates, fetcher, 10*1024*1024)
}

func newLimitedHandler(t *testing.T, candidates []models.CandidateImage, fetcher staticFetcher, maxBody int64) (http.Handler, *observer.MetricsObserver) {
	t.Helper()
	pool := search.NewWorkerPool(2)
	pool.Start()
	t.Cleanup(pool.Close)

	metrics := observer.NewMetricsObserver()
	publisher := observer.NewEventPublisher()
	publisher.Subscribe(metrics)

	searcher := search.NewSearcher(repository.NewStaticCandidateRepository(candidates), fetcher, pool, publisher, search.DefaultConfig())
	cfg := &config.Config{RequestTimeout: 5 * time.Second, MaxRequestBodySize: maxBody}
	return NewHandler(searcher, search.NewSessions(searcher), metrics, cfg), metrics
}

func multipartBody(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, data := range files {
		part, err := w.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(data)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestHandler(t, nil, staticFetcher{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "available" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestSearch_Upload(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	fetcher := staticFetcher{
		"https://cdn.example.com/red.png":  uniformPNG(t, red),
		"https://cdn.example.com/blue.png": uniformPNG(t, blue),
	}
	candidates := []models.CandidateImage{
		{ID: "7", Category: models.CategoryPet, ImageLocation: "https://cdn.example.com/red.png",
			Metadata: map[string]string{models.MetaTitle: "Red collar"}},
		{ID: "8", Category: models.CategoryPet, ImageLocation: "https://cdn.example.com/blue.png"},
		{ID: "9", Category: models.CategoryPet, ImageLocation: "https://cdn.example.com/gone.png"},
	}
	h, _ := newTestHandler(t, candidates, fetcher)

	body, contentType := multipartBody(t, map[string][]byte{"image": uniformPNG(t, red)})
	req := httptest.NewRequest(http.MethodPost, "/search?category=pet", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(SessionHeader, "user-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CandidateCount != 3 || resp.FailedCount != 1 {
		t.Errorf("counts = %d/%d, want 3/1", resp.CandidateCount, resp.FailedCount)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].ID != "7" {
		t.Fatalf("unexpected matches %+v", resp.Matches)
	}
	if resp.Matches[0].Metadata[models.MetaTitle] != "Red collar" || resp.Matches[0].Similarity < 0.999 {
		t.Errorf("unexpected match %+v", resp.Matches[0])
	}
	if resp.SearchID == "" {
		t.Error("expected search id")
	}
}

func TestSearch_InvalidQueryImage(t *testing.T) {
	h, _ := newTestHandler(t, nil, staticFetcher{})

	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{"undecodable upload", func() *http.Request {
			body, ct := multipartBody(t, map[string][]byte{"image": []byte("not an image")})
			req := httptest.NewRequest(http.MethodPost, "/search", body)
			req.Header.Set("Content-Type", ct)
			return req
		}},
		{"missing upload field", func() *http.Request {
			body, ct := multipartBody(t, map[string][]byte{"photo": uniformPNG(t, color.RGBA{A: 255})})
			req := httptest.NewRequest(http.MethodPost, "/search", body)
			req.Header.Set("Content-Type", ct)
			return req
		}},
		{"unreachable image url", func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/search",
				bytes.NewBufferString(`{"image_url":"https://cdn.example.com/missing.png"}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.build())

			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Message != "select a valid image" {
				t.Errorf("message = %q", resp.Message)
			}
		})
	}
}

func TestSearch_BadRequests(t *testing.T) {
	h, _ := newTestHandler(t, nil, staticFetcher{})

	tests := []struct {
		name string
		path string
		body string
	}{
		{"malformed json", "/search", `{"image_url":`},
		{"missing image url", "/search", `{}`},
		{"unknown category in body", "/search", `{"image_url":"https://cdn.example.com/a.png","categories":["dragon"]}`},
		{"unknown category in query", "/search?category=dragon", `{"image_url":"https://cdn.example.com/a.png"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSearch_ByLocationEmptyCorpus(t *testing.T) {
	fetcher := staticFetcher{"https://cdn.example.com/query.png": uniformPNG(t, color.RGBA{10, 200, 30, 255})}
	h, metrics := newTestHandler(t, nil, fetcher)

	req := httptest.NewRequest(http.MethodPost, "/search",
		bytes.NewBufferString(`{"image_url":"https://cdn.example.com/query.png","categories":["vehicle"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Message != search.AdvisoryNoCandidates || len(resp.Matches) != 0 {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Matches == nil {
		t.Error("matches should serialize as an empty list")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if metrics.GetMetrics()["completed_searches"] == int64(1) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	var m map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m["completed_searches"] != float64(1) {
		t.Errorf("metrics = %v", m)
	}
}

func TestCompare(t *testing.T) {
	h, _ := newTestHandler(t, nil, staticFetcher{})
	white := uniformPNG(t, color.RGBA{255, 255, 255, 255})
	black := uniformPNG(t, color.RGBA{0, 0, 0, 255})

	body, ct := multipartBody(t, map[string][]byte{"image_a": white, "image_b": black})
	req := httptest.NewRequest(http.MethodPost, "/compare", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var b models.ScoreBreakdown
	json.Unmarshal(rec.Body.Bytes(), &b)
	if b.Combined > 1e-9 || b.Color > 1e-9 || b.Histogram != 0 {
		t.Errorf("black vs white should score 0, got %+v", b)
	}

	body, ct = multipartBody(t, map[string][]byte{"image_a": white})
	req = httptest.NewRequest(http.MethodPost, "/compare", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestDetermineStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.NewDecodeError("bad", nil), http.StatusUnprocessableEntity},
		{search.ErrSuperseded, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, apperrors.StatusClientClosedRequest},
		{apperrors.NewCancelledError("gone", context.Canceled), apperrors.StatusClientClosedRequest},
	}
	for _, tt := range tests {
		if got := determineStatusCode(tt.err); got != tt.want {
			t.Errorf("determineStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestOversizedBodies(t *testing.T) {
	big := bytes.Repeat([]byte{0x42}, 64*1024)
	h, _ := newLimitedHandler(t, nil, staticFetcher{}, 4*1024)

	searchBody, searchType := multipartBody(t, map[string][]byte{"image": big})
	compareBody, compareType := multipartBody(t, map[string][]byte{"image_a": big, "image_b": big})
	jsonBody := `{"image_url":"https://cdn.example.com/` + string(bytes.Repeat([]byte("a"), 8*1024)) + `.png"}`

	tests := []struct {
		name        string
		path        string
		body        *bytes.Buffer
		contentType string
	}{
		{"search upload", "/search", searchBody, searchType},
		{"compare upload", "/compare", compareBody, compareType},
		{"search json", "/search", bytes.NewBufferString(jsonBody), "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, tt.body)
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("status = %d, want 413 (body %s)", rec.Code, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Type != string(apperrors.ErrorTypeTooLarge) {
				t.Errorf("Type = %q, want %q", resp.Type, apperrors.ErrorTypeTooLarge)
			}
		})
	}
}

func TestUploadWithinLimitStillValidated(t *testing.T) {
	h, _ := newLimitedHandler(t, nil, staticFetcher{}, 4*1024)
	body, contentType := multipartBody(t, map[string][]byte{"image": []byte("not an image")})

	req := httptest.NewRequest(http.MethodPost, "/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Message != "select a valid image" {
		t.Errorf("Message = %q", resp.Message)
	}
}
