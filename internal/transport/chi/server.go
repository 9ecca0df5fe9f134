package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	gochi "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/peersearch/internal/domain"
	domdoc "github.com/kailas-cloud/peersearch/internal/domain/document"
	"github.com/kailas-cloud/peersearch/internal/domain/filter"
	"github.com/kailas-cloud/peersearch/internal/domain/query"
	logpkg "github.com/kailas-cloud/peersearch/internal/logger"
	"github.com/kailas-cloud/peersearch/internal/transport/peer"
	documentuc "github.com/kailas-cloud/peersearch/internal/usecase/document"
	healthuc "github.com/kailas-cloud/peersearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/peersearch/internal/usecase/search"
	"github.com/kailas-cloud/peersearch/internal/version"
)

const (
	maxDocumentBody = domdoc.MaxHTMLSize + 64<<10
	maxQueryBody    = 64 << 10
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// FilterSource exposes the filter of the local index.
type FilterSource interface {
	Filter() *filter.Filter
}

// Server serves the node API: local and network search, document ingestion and the peer endpoints.
type Server struct {
	documents     *documentuc.Service
	search        *searchuc.Service
	filters       FilterSource
	health        *healthuc.Service
	self          domain.PeerID
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	documents *documentuc.Service,
	search *searchuc.Service,
	filters FilterSource,
	health *healthuc.Service,
	self domain.PeerID,
	logger *zap.Logger,
) *Server {
	s := &Server{
		documents: documents,
		search:    search,
		filters:   filters,
		health:    health,
		self:      self,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(query.ErrDecode, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidDocument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
		sentinelHandler(domain.ErrActorUnavailable, http.StatusServiceUnavailable, CodeActorUnavailable),
	}
	return s
}

// Handler registers the API routes on r. Document writes require one of apiKeys when any is set.
func (s *Server) Handler(r gochi.Router, apiKeys []string) {
	r.Get("/", s.Hello)
	r.Get("/local-search", s.LocalSearch)
	r.Get("/search", s.Search)
	r.Get("/fetch-results", s.FetchResults)

	r.Group(func(r gochi.Router) {
		r.Use(BearerAuthMiddleware(apiKeys))
		r.Get("/documents/{cid}", s.GetDocument)
		r.Put("/documents/{cid}", s.PutDocument)
		r.Delete("/documents/{cid}", s.DeleteDocument)
	})

	r.Get(peer.FilterPath, s.PeerFilter)
	r.Post(peer.QueryPath, s.PeerQuery)

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Hello handles GET /.
func (s *Server) Hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HelloResponse{
		Name:    "peersearch",
		Peer:    s.self,
		Version: version.Version,
	})
}

// LocalSearch handles GET /local-search.
func (s *Server) LocalSearch(w http.ResponseWriter, r *http.Request) {
	q, ok := s.bindQuery(w, r)
	if !ok {
		return
	}
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid parameter limit")
		return
	}

	matches, err := s.search.Local(r.Context(), q, derefInt(limit))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LocalSearchResponse{Items: matches, Total: len(matches)})
}

// Search handles GET /search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q, ok := s.bindQuery(w, r)
	if !ok {
		return
	}

	id, err := s.search.Submit(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{ID: id})
}

// FetchResults handles GET /fetch-results.
func (s *Server) FetchResults(w http.ResponseWriter, r *http.Request) {
	var id string
	if err := runtime.BindQueryParameter("form", true, true, "id", r.URL.Query(), &id); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid parameter id")
		return
	}

	entries, err := s.search.Fetch(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// GetDocument handles GET /documents/{cid}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), gochi.URLParam(r, "cid"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, documentToResponse(&doc))
}

// PutDocument handles PUT /documents/{cid}.
func (s *Server) PutDocument(w http.ResponseWriter, r *http.Request) {
	cid := gochi.URLParam(r, "cid")

	var req UpsertDocumentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	created, err := s.documents.Upsert(r.Context(), cid, req.HTML, req.Paths)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		w.Header().Set("Location", fmt.Sprintf("/documents/%s", cid))
	}

	paths := req.Paths
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, status, DocumentResponse{CID: cid, Paths: paths})
}

// DeleteDocument handles DELETE /documents/{cid}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.documents.Delete(r.Context(), gochi.URLParam(r, "cid")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PeerFilter handles GET /peer/filter.
func (s *Server) PeerFilter(w http.ResponseWriter, _ *http.Request) {
	f := s.filters.Filter()
	writeJSON(w, http.StatusOK, peer.FilterResponse{
		Peer: s.self,
		Size: f.Size(),
		Data: f.Compress(),
	})
}

// PeerQuery handles POST /peer/query. The body is an encoded query.
func (s *Server) PeerQuery(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid parameter limit")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	q, err := query.FromBytes(body)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	matches, err := s.search.Local(r.Context(), q, derefInt(limit))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, peer.QueryResponse{Peer: s.self, Items: matches})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// bindQuery reads the q and lang parameters into a query. It writes the error response itself.
func (s *Server) bindQuery(w http.ResponseWriter, r *http.Request) (query.Query, bool) {
	var text string
	if err := runtime.BindQueryParameter("form", true, true, "q", r.URL.Query(), &text); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid parameter q")
		return query.Query{}, false
	}
	var lang *string
	if err := runtime.BindQueryParameter("form", true, false, "lang", r.URL.Query(), &lang); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid parameter lang")
		return query.Query{}, false
	}

	q, err := query.FromText(text)
	if err != nil {
		s.handleDomainError(w, r, err)
		return query.Query{}, false
	}
	if lang != nil && *lang != "" {
		q = q.WithFilter(documentuc.FilterLang, *lang)
	}
	return q, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		query.ErrDecode,
		domain.ErrInvalidQuery,
		domain.ErrInvalidDocument,
		domain.ErrDocumentNotFound,
		domain.ErrSessionNotFound,
		domain.ErrActorUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContextOr(r.Context(), s.logger)
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func documentToResponse(doc *domdoc.Document) DocumentResponse {
	paths := doc.Paths()
	if paths == nil {
		paths = []string{}
	}
	return DocumentResponse{CID: doc.CID(), Paths: paths}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
