package chi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/domain"
	"github.com/thomasbeckford/pasichat/internal/logger"
	"github.com/thomasbeckford/pasichat/internal/usecase/capability"
	healthuc "github.com/thomasbeckford/pasichat/internal/usecase/health"
)

// fallbackMessage is returned when retrieval finds nothing relevant.
const fallbackMessage = "This questions are not in my knowledge base, " +
	"please contact your doctor or a medical professional."

const defaultMaxUploadBytes = 10 << 20

type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeValidationFailed  errorCode = "validation_failed"
	codeInvalidUpload     errorCode = "invalid_upload"
	codeUploadTooLarge    errorCode = "upload_too_large"
	codeExtractionFailed  errorCode = "extraction_failed"
	codeUnknownCapability errorCode = "unknown_capability"
	codeNotFound          errorCode = "not_found"
	codeRateLimited       errorCode = "rate_limited"
	codeEmbeddingProvider errorCode = "embedding_provider_error"
	codeChatProvider      errorCode = "chat_provider_error"
	codeStorage           errorCode = "storage_unavailable"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the knowledge base capabilities over HTTP.
type Server struct {
	dispatcher     *capability.Dispatcher
	health         *healthuc.Service
	logger         *zap.Logger
	maxUploadBytes int64
	errorHandlers  []errorHandler
}

// NewServer creates the HTTP API server. maxUploadMB bounds PDF upload
// size; zero falls back to 10MB.
func NewServer(dispatcher *capability.Dispatcher, health *healthuc.Service, maxUploadMB int, logger *zap.Logger) *Server {
	maxBytes := int64(maxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		dispatcher:     dispatcher,
		health:         health,
		logger:         logger,
		maxUploadBytes: maxBytes,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrEmptyContent, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidUpload, http.StatusBadRequest, codeInvalidUpload),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, codeExtractionFailed),
		sentinelHandler(domain.ErrUnknownCapability, http.StatusNotFound, codeUnknownCapability),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrChatProvider, http.StatusBadGateway, codeChatProvider),
		sentinelHandler(domain.ErrStorage, http.StatusServiceUnavailable, codeStorage),
	}
	return s
}

// Register mounts all routes on the router. Middleware is wired by the
// caller before mounting.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/facts", s.AddFact)
	r.Post("/v1/documents", s.AddDocument)
	r.Post("/v1/query", s.Query)
	r.Post("/v1/capabilities/{name}", s.DispatchCapability)
	r.Get("/healthz", s.Healthz)
	r.Get("/metrics", s.Metrics)
}

type addFactRequest struct {
	Content string `json:"content"`
}

// AddFact handles POST /v1/facts.
func (s *Server) AddFact(w http.ResponseWriter, r *http.Request) {
	var req addFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.dispatcher.AddFact(r.Context(), capability.AddFactRequest{Content: req.Content})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// AddDocument handles POST /v1/documents. The body is the raw PDF
// stream; size and content type are checked before any byte reaches
// the extractor.
func (s *Server) AddDocument(w http.ResponseWriter, r *http.Request) {
	if !isPDFContentType(r.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, codeInvalidUpload, "content type must be application/pdf")
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeUploadTooLarge, "document exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidUpload, "read upload: "+err.Error())
		return
	}
	if !strings.HasPrefix(string(data[:min(len(data), 5)]), "%PDF-") {
		writeError(w, http.StatusBadRequest, codeInvalidUpload, "body is not a PDF stream")
		return
	}

	res, err := s.dispatcher.AddDocument(r.Context(), capability.AddDocumentRequest{Data: data})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

type queryRequest struct {
	Question string   `json:"question"`
	Keywords []string `json:"keywords,omitempty"`
	// Understand asks the chat model for similar questions to search
	// alongside the original one.
	Understand bool `json:"understand,omitempty"`
}

type queryResponse struct {
	Matches []domain.Match `json:"matches"`
	Message string         `json:"message,omitempty"`
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	keywords := req.Keywords
	if req.Understand {
		understood, err := s.dispatcher.UnderstandQuery(r.Context(),
			capability.UnderstandQueryRequest{Query: req.Question})
		if err != nil {
			s.handleDomainError(w, r, err)
			return
		}
		// Queries[0] is the original question itself.
		keywords = append(keywords, understood.Queries[1:]...)
	}

	res, err := s.dispatcher.GetInformation(r.Context(), capability.GetInformationRequest{
		Question: req.Question,
		Keywords: keywords,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := queryResponse{Matches: res.Matches}
	if len(resp.Matches) == 0 {
		resp.Matches = []domain.Match{}
		resp.Message = fallbackMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

// DispatchCapability handles POST /v1/capabilities/{name} for callers
// that route by capability name and supply raw arguments.
func (s *Server) DispatchCapability(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "read arguments: "+err.Error())
		return
	}

	out, err := s.dispatcher.Dispatch(r.Context(), name, args)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// Healthz handles GET /healthz.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func isPDFContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "application/pdf" || mediaType == "application/octet-stream"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidArgument,
		domain.ErrEmptyContent,
		domain.ErrInvalidUpload,
		domain.ErrExtraction,
		domain.ErrUnknownCapability,
		domain.ErrNotFound,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProvider,
		domain.ErrChatProvider,
		domain.ErrStorage,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context(), s.logger)
	log.Warn("domain error",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
