package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"resume-enhancer/internal/broker"
	"resume-enhancer/internal/engine"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/internal/ledger"
	"resume-enhancer/internal/store"
	"resume-enhancer/pkg/errors"
	"resume-enhancer/pkg/logger"
	"resume-enhancer/pkg/types"
)

// Upload size limits in bytes.
const (
	maxResumeUpload = 5 << 20
	maxJDUpload     = 10 << 20
)

// TextExtractor pulls plain text out of an uploaded PDF.
type TextExtractor interface {
	FromPDF(path string) (string, error)
}

// ResumeStructurer converts raw resume text into the structured form.
type ResumeStructurer interface {
	Structure(ctx context.Context, resumeText string) (*types.StructuredResume, error)
}

// Enhancer launches the background per-point enhancement run.
type Enhancer interface {
	Start(jobID string, rc engine.RunContext)
}

// JDAnalyzer runs the background job description analysis.
type JDAnalyzer interface {
	Run(ctx context.Context, jdID string)
}

// DocumentMaterializer renders the final PDF for a finished job.
type DocumentMaterializer interface {
	Materialize(jobID string, selections map[string]string) ([]byte, error)
}

type Config struct {
	LLM          gateway.Completer
	Extractor    TextExtractor
	Structurer   ResumeStructurer
	Enhancer     Enhancer
	Analyzer     JDAnalyzer
	Materializer DocumentMaterializer
	Store        *store.Store
	Jobs         *ledger.Ledger
	Events       *broker.Broker
	UploadDir    string
}

type Server struct {
	cfg     Config
	handler http.Handler
}

func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/suggest", s.handleSuggest)

	mux.HandleFunc("POST /api/roles", s.handleCreateRole)
	mux.HandleFunc("GET /api/roles", s.handleListRoles)
	mux.HandleFunc("DELETE /api/roles/{roleId}", s.handleDeleteRole)
	mux.HandleFunc("POST /api/roles/{roleId}/jds/url", s.handleAddJDFromURL)
	mux.HandleFunc("POST /api/roles/{roleId}/jds/upload", s.handleAddJDFromUpload)
	mux.HandleFunc("GET /api/roles/{roleId}/jds", s.handleListRoleJDs)
	mux.HandleFunc("GET /api/roles/{roleId}/keywords", s.handleRoleKeywords)

	mux.HandleFunc("GET /api/jds", s.handleListCompletedJDs)
	mux.HandleFunc("POST /api/jds/{jdId}/analyze", s.handleAnalyzeJD)
	mux.HandleFunc("DELETE /api/jds/{jdId}", s.handleDeleteJD)

	mux.HandleFunc("POST /api/customize-resume", s.handleCustomizeResume)
	mux.HandleFunc("GET /api/customize-stream/{jobId}", s.handleCustomizeStream)
	mux.HandleFunc("POST /api/generate-edited-pdf", s.handleGenerateEditedPDF)

	s.handler = Recover(RequestID(Logger(CORS(mux))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, apiErr *errors.ApiError) {
	apiErr = apiErr.WithRequestID(logger.GetRequestID(r.Context()))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode())
	if err := json.NewEncoder(w).Encode(apiErr); err != nil {
		slog.Error("encoding error response failed", "error", err)
	}
}

// newDetachedContext keeps the request id but drops the request's
// cancellation, for background work that outlives the response.
func newDetachedContext(r *http.Request) context.Context {
	return logger.WithRequestID(context.Background(), logger.GetRequestID(r.Context()))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
