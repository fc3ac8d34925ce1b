package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thomasbeckford/pasichat/internal/domain"
	"github.com/thomasbeckford/pasichat/internal/logger"
	"github.com/thomasbeckford/pasichat/internal/usecase/capability"
	healthuc "github.com/thomasbeckford/pasichat/internal/usecase/health"
)

type stubIngestor struct {
	stored int
	err    error
}

func (s *stubIngestor) IngestText(context.Context, string, string) (int, error) {
	return s.stored, s.err
}

func (s *stubIngestor) IngestChunks(_ context.Context, chunks []string, _ string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return len(chunks), nil
}

type stubRetriever struct {
	queries []string
	matches []domain.Match
	err     error
}

func (s *stubRetriever) Retrieve(_ context.Context, queries []string) ([]domain.Match, error) {
	s.queries = queries
	return s.matches, s.err
}

type stubExtractor struct {
	chunks []string
	err    error
}

func (s *stubExtractor) ExtractText([]byte) ([]string, error) { return s.chunks, s.err }

type stubUnderstander struct {
	questions []string
	err       error
}

func (s *stubUnderstander) SimilarQuestions(context.Context, string) ([]string, error) {
	return s.questions, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

type serverDeps struct {
	ingestor    *stubIngestor
	retriever   *stubRetriever
	extractor   *stubExtractor
	understand  *stubUnderstander
	pinger      *stubPinger
	maxUploadMB int
}

func newTestServer(d serverDeps) *httptest.Server {
	if d.ingestor == nil {
		d.ingestor = &stubIngestor{}
	}
	if d.retriever == nil {
		d.retriever = &stubRetriever{}
	}
	if d.extractor == nil {
		d.extractor = &stubExtractor{}
	}
	if d.understand == nil {
		d.understand = &stubUnderstander{}
	}
	if d.pinger == nil {
		d.pinger = &stubPinger{}
	}

	dispatcher := capability.NewDispatcher(
		d.ingestor, d.retriever, d.extractor, d.understand,
		capability.Config{MaxAttempts: 2, Budget: time.Second, BackoffUnit: time.Microsecond},
		nil,
	)
	srv := NewServer(dispatcher, healthuc.New(d.pinger, nil), d.maxUploadMB, nil)

	r := chi.NewRouter()
	srv.Register(r)
	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAddFact_Created(t *testing.T) {
	ts := newTestServer(serverDeps{ingestor: &stubIngestor{stored: 3}})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/facts", map[string]string{"content": "el paciente toma cabotegravir mensual."})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	res := decodeBody[capability.AddFactResult](t, resp)
	if res.Stored != 3 {
		t.Fatalf("stored = %d, want 3", res.Stored)
	}
}

func TestAddFact_InvalidJSON(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/facts", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Code != codeBadRequest {
		t.Fatalf("code = %s, want %s", errResp.Code, codeBadRequest)
	}
}

func TestAddFact_EmptyContent(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/facts", map[string]string{"content": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Code != codeValidationFailed {
		t.Fatalf("code = %s, want %s", errResp.Code, codeValidationFailed)
	}
}

func TestAddFact_RateLimited429(t *testing.T) {
	ing := &stubIngestor{err: fmt.Errorf("quota: %w", domain.ErrRateLimited)}
	ts := newTestServer(serverDeps{ingestor: ing})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/facts", map[string]string{"content": "dato."})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
}

func TestAddDocument_WrongContentType(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/documents", "text/plain", strings.NewReader("hola"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Code != codeInvalidUpload {
		t.Fatalf("code = %s, want %s", errResp.Code, codeInvalidUpload)
	}
}

func TestAddDocument_NotAPDFStream(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/documents", "application/pdf", strings.NewReader("hola mundo"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAddDocument_TooLarge413(t *testing.T) {
	ts := newTestServer(serverDeps{maxUploadMB: 1})
	defer ts.Close()

	body := append([]byte("%PDF-"), bytes.Repeat([]byte("a"), 1<<20)...)
	resp, err := http.Post(ts.URL+"/v1/documents", "application/pdf", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestAddDocument_Created(t *testing.T) {
	ext := &stubExtractor{chunks: []string{"[Página 1]\nuno.", "[Página 2]\ndos."}}
	ts := newTestServer(serverDeps{extractor: ext})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/documents", "application/pdf", strings.NewReader("%PDF-1.4 contenido"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	res := decodeBody[capability.AddDocumentResult](t, resp)
	if res.Chunks != 2 || res.Stored != 2 {
		t.Fatalf("result = %+v, want 2/2", res)
	}
}

func TestAddDocument_ExtractionFailed422(t *testing.T) {
	ext := &stubExtractor{err: fmt.Errorf("no pages: %w", domain.ErrExtraction)}
	ts := newTestServer(serverDeps{extractor: ext})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/documents", "application/pdf", strings.NewReader("%PDF-1.4 roto"))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestQuery_ReturnsMatches(t *testing.T) {
	ret := &stubRetriever{matches: []domain.Match{
		{Content: "cabotegravir es un antirretroviral", Similarity: 0.82},
	}}
	ts := newTestServer(serverDeps{retriever: ret})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/query", queryRequest{Question: "que toma el paciente?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	res := decodeBody[queryResponse](t, resp)
	if len(res.Matches) != 1 || res.Message != "" {
		t.Fatalf("response = %+v, want one match and no message", res)
	}
}

func TestQuery_EmptyResultCarriesFallbackMessage(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/query", queryRequest{Question: "algo desconocido?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	res := decodeBody[queryResponse](t, resp)
	if len(res.Matches) != 0 {
		t.Fatalf("matches = %v, want none", res.Matches)
	}
	if res.Message != fallbackMessage {
		t.Fatalf("message = %q, want fallback", res.Message)
	}
}

func TestQuery_UnderstandAddsSimilarQuestions(t *testing.T) {
	ret := &stubRetriever{matches: []domain.Match{{Content: "pasaje", Similarity: 0.5}}}
	und := &stubUnderstander{questions: []string{"cual es su medicacion?"}}
	ts := newTestServer(serverDeps{retriever: ret, understand: und})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/query", queryRequest{
		Question:   "que toma?",
		Keywords:   []string{"tratamiento"},
		Understand: true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	want := []string{"que toma?", "tratamiento", "cual es su medicacion?"}
	if len(ret.queries) != len(want) {
		t.Fatalf("queries = %v, want %v", ret.queries, want)
	}
	for i := range want {
		if ret.queries[i] != want[i] {
			t.Fatalf("queries[%d] = %q, want %q", i, ret.queries[i], want[i])
		}
	}
}

func TestQuery_StorageDown503(t *testing.T) {
	ret := &stubRetriever{err: fmt.Errorf("refused: %w", domain.ErrStorage)}
	ts := newTestServer(serverDeps{retriever: ret})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/query", queryRequest{Question: "pregunta?"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Code != codeStorage {
		t.Fatalf("code = %s, want %s", errResp.Code, codeStorage)
	}
}

func TestDispatchCapability_ByName(t *testing.T) {
	ret := &stubRetriever{matches: []domain.Match{{Content: "pasaje", Similarity: 0.6}}}
	ts := newTestServer(serverDeps{retriever: ret})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/capabilities/get_information",
		capability.GetInformationRequest{Question: "pregunta?"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	res := decodeBody[capability.GetInformationResult](t, resp)
	if len(res.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(res.Matches))
	}
}

func TestDispatchCapability_UnknownName404(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/capabilities/drop_index", map[string]string{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	errResp := decodeBody[errorResponse](t, resp)
	if errResp.Code != codeUnknownCapability {
		t.Fatalf("code = %s, want %s", errResp.Code, codeUnknownCapability)
	}
}

func TestHealthz_OK(t *testing.T) {
	ts := newTestServer(serverDeps{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHealthz_StoreDown503(t *testing.T) {
	ts := newTestServer(serverDeps{pinger: &stubPinger{err: errors.New("refused")}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestDomainErrorLogsThroughRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	dispatcher := capability.NewDispatcher(
		&stubIngestor{err: domain.ErrStorage}, &stubRetriever{}, &stubExtractor{}, &stubUnderstander{},
		capability.Config{MaxAttempts: 2, Budget: time.Second, BackoffUnit: time.Microsecond},
		nil,
	)
	srv := NewServer(dispatcher, healthuc.New(&stubPinger{}, nil), 0, zap.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.ContextWithLogger(req.Context(), zap.New(core))
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	srv.Register(r)
	ts := httptest.NewServer(r)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/facts", map[string]string{"content": "dato."})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := logs.FilterMessage("domain error").Len(); got != 1 {
		t.Fatalf("request logger recorded %d domain error entries, want 1", got)
	}
}
