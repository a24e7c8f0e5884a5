package operator

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/jobs"
	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/priorartsearch"
	"github.com/joelkehle/priorart-assistant/internal/specdraft"
)

const maxRequestBytes = 8 << 20

type Pipeline interface {
	Run(ctx context.Context, d priorartsearch.Disclosure) string
	Keywords(ctx context.Context, d priorartsearch.Disclosure) string
}

type Drafter interface {
	Draft(ctx context.Context, in specdraft.Input) string
}

type JobRunner interface {
	Start(ctx context.Context, kind jobs.Kind, work jobs.Work) (string, error)
	Result(ctx context.Context, id string) (jobs.Result, error)
}

type Options struct {
	WebDir         string
	MetricsHandler http.Handler
	PDFRenderer    ReportPDFRenderer
}

type Server struct {
	router      chi.Router
	runner      JobRunner
	pipeline    Pipeline
	drafter     Drafter
	pdfRenderer ReportPDFRenderer
	webDir      string
	logger      *zap.Logger
}

func NewServer(runner JobRunner, pipeline Pipeline, drafter Drafter, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		runner:      runner,
		pipeline:    pipeline,
		drafter:     drafter,
		pdfRenderer: opts.PDFRenderer,
		webDir:      opts.WebDir,
		logger:      logging.OrNop(logger),
	}
	s.routes(opts.MetricsHandler)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(metrics http.Handler) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			s.logger.Debug("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("dur", time.Since(start)),
			)
		})
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics)
	}
	s.router.Get("/", s.handleIndex)
	s.router.Get("/style.css", s.handleStyle)
	s.router.Post("/jobs", s.handleStartJob)
	s.router.Get("/jobs/{id}", s.handleJobStatus)
	s.router.Get("/report/{id}", s.handleReport)
	s.router.Get("/report/{id}/html", s.handleReportHTML)
	s.router.Get("/report-pdf/{id}", s.handleReportPDF)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Prevent stale frontend bundles from breaking the UI after deploys.
	w.Header().Set("Cache-Control", "no-store")
	s.serveWebFile(w, r, "index.html", "text/html; charset=utf-8")
}

func (s *Server) handleStyle(w http.ResponseWriter, r *http.Request) {
	s.serveWebFile(w, r, "style.css", "text/css; charset=utf-8")
}

// serveWebFile serves WEB_DIR/<name> when present, else the embedded copy.
func (s *Server) serveWebFile(w http.ResponseWriter, r *http.Request, name, contentType string) {
	if s.webDir != "" {
		path := filepath.Join(s.webDir, name)
		if _, err := os.Stat(path); err == nil {
			http.ServeFile(w, r, path)
			return
		}
	}
	b, err := fs.ReadFile(webFS, "web/"+name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(b)
}

type jobRequest struct {
	Kind       jobs.Kind       `json:"kind"`
	Disclosure string          `json:"disclosure"`
	FocusArea  string          `json:"focus_area"`
	Draft      specdraft.Input `json:"draft"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	req, err := decodeJobRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Kind == "" {
		req.Kind = jobs.KindPriorArt
	}
	if !req.Kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job kind %q", req.Kind))
		return
	}

	var work jobs.Work
	switch req.Kind {
	case jobs.KindDraft:
		if err := req.Draft.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in := req.Draft
		work = func(ctx context.Context) string { return s.drafter.Draft(ctx, in) }
	default:
		if strings.TrimSpace(req.Disclosure) == "" {
			writeError(w, http.StatusBadRequest, "invention disclosure is required")
			return
		}
		d := priorartsearch.Disclosure{Text: req.Disclosure, FocusArea: req.FocusArea}
		if req.Kind == jobs.KindKeywords {
			work = func(ctx context.Context) string { return s.pipeline.Keywords(ctx, d) }
		} else {
			work = func(ctx context.Context) string { return s.pipeline.Run(ctx, d) }
		}
	}

	id, err := s.runner.Start(r.Context(), req.Kind, work)
	if err != nil {
		s.logger.Error("job_start_failed", zap.String("kind", string(req.Kind)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id})
}

func decodeJobRequest(r *http.Request) (jobRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var req jobRequest
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body")
		}
		return req, nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
			return req, fmt.Errorf("invalid multipart form")
		}
	default:
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("invalid form")
		}
	}
	req.Kind = jobs.Kind(strings.TrimSpace(r.FormValue("kind")))
	req.Disclosure = r.FormValue("disclosure")
	req.FocusArea = r.FormValue("focus_area")
	req.Draft = specdraft.Input{
		ProposedTitle:          r.FormValue("proposed_title"),
		FieldOfInvention:       r.FormValue("field_of_invention"),
		BackgroundProblem:      r.FormValue("background_problem"),
		SummaryIdea:            r.FormValue("summary_idea"),
		DetailedDescription:    r.FormValue("detailed_description"),
		Advantages:             r.FormValue("advantages"),
		AlternativeEmbodiments: r.FormValue("alternative_embodiments"),
		ExampleSpecStyle:       r.FormValue("example_spec_style"),
	}
	return req, nil
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.runner.Result(r.Context(), id)
	if err != nil {
		s.logger.Error("job_lookup_failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	switch res.Status {
	case jobs.StatusNotFound:
		writeJSON(w, http.StatusNotFound, map[string]any{"status": jobs.StatusNotFound})
	case jobs.StatusProcessing:
		writeJSON(w, http.StatusOK, map[string]any{"status": jobs.StatusProcessing})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": res.Status, "kind": res.Kind, "report": res.Report})
	}
}

// finishedReport writes the error response itself when the job is not done.
func (s *Server) finishedReport(w http.ResponseWriter, r *http.Request) (string, jobs.Result, bool) {
	id := chi.URLParam(r, "id")
	res, err := s.runner.Result(r.Context(), id)
	switch {
	case err != nil:
		s.logger.Error("job_lookup_failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return "", res, false
	case res.Status == jobs.StatusNotFound:
		writeError(w, http.StatusNotFound, "job not found")
		return "", res, false
	case res.Status == jobs.StatusProcessing:
		writeError(w, http.StatusConflict, "report not ready")
		return "", res, false
	}
	return id, res, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id, res, ok := s.finishedReport(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", sanitizeFilename(string(res.Kind))+"-"+sanitizeFilename(id)+".md"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(res.Report))
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	id, res, ok := s.finishedReport(w, r)
	if !ok {
		return
	}
	out, err := RenderHTML(res.Report)
	if err != nil {
		s.logger.Error("render_report_html_failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if s.pdfRenderer == nil {
		writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
		return
	}
	id, res, ok := s.finishedReport(w, r)
	if !ok {
		return
	}
	pdf, err := s.pdfRenderer.Render(r.Context(), reportTitle(res.Kind), res.Report)
	if err != nil {
		s.logger.Error("render_report_pdf_failed", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render pdf")
		return
	}
	filename := fmt.Sprintf("%s-%s.pdf", sanitizeFilename(string(res.Kind)), sanitizeFilename(id))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func reportTitle(kind jobs.Kind) string {
	switch kind {
	case jobs.KindKeywords:
		return "Keyword Search Strategy"
	case jobs.KindDraft:
		return "Draft Patent Specification"
	default:
		return "Prior Art Search Report"
	}
}

func sanitizeFilename(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "report"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, v)
}
