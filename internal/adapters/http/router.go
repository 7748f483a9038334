package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/config"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/report"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/observability/metrics"
)

const (
	serviceName         = "api"
	multipartMemory     = 8 << 20
	defaultMaxUploadLen = 32 << 20
)

// uploadFields lists the multipart fields accepted for exam images, in
// lookup order.
var uploadFields = []string{"images", "files", "file"}

type Router struct {
	cfg     config.Config
	intake  ports.ExamIntake
	reader  ports.ExamReader
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, intake ports.ExamIntake, reader ports.ExamReader) *Router {
	return &Router{
		cfg:    cfg,
		intake: intake,
		reader: reader,
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/exams", rt.createExam)
	mux.HandleFunc("GET /v1/exams/{examID}", rt.getExam)
	mux.HandleFunc("POST /v1/exams/{examID}/analyze", rt.analyzeExam)
	mux.HandleFunc("POST /v1/exams/{examID}/images/{imageID}/analyze", rt.analyzeImage)
	mux.HandleFunc("GET /v1/exams/{examID}/findings", rt.listFindings)
	mux.HandleFunc("GET /v1/exams/{examID}/findings/export", rt.exportFindings)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.BackpressureWait(), rt.recordRejected)
	handler = rateLimitMiddleware(handler, rt.limiter(), rt.recordRejected)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) limiter() *rate.Limiter {
	if rt.cfg.APIRateLimitRPS <= 0 {
		return nil
	}
	burst := rt.cfg.APIRateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createExam(w http.ResponseWriter, r *http.Request) {
	maxBytes := rt.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadLen
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, err)
			return
		}
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse upload", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := uploadedFiles(r.MultipartForm)
	if len(headers) == 0 {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse upload", errors.New("multipart field 'images' is required")))
		return
	}

	files := make([]ports.UploadFile, 0, len(headers))
	sizes := make([]int64, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "open upload", fmt.Errorf("%s: %w", header.Filename, err)))
			return
		}
		defer file.Close()
		files = append(files, ports.UploadFile{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Body:        file,
		})
		sizes = append(sizes, header.Size)
	}

	examType := r.FormValue("exam_type")
	exam, err := rt.intake.CreateExam(r.Context(), examType, files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, string(exam.Type), sizes)
	}
	writeJSON(w, http.StatusAccepted, exam)
}

func uploadedFiles(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	for _, field := range uploadFields {
		if headers := form.File[field]; len(headers) > 0 {
			return headers
		}
	}
	return nil
}

func (rt *Router) getExam(w http.ResponseWriter, r *http.Request) {
	exam, err := rt.reader.GetExam(r.Context(), r.PathValue("examID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (rt *Router) analyzeExam(w http.ResponseWriter, r *http.Request) {
	req := domain.AnalysisRequest{ExamID: r.PathValue("examID")}
	if err := rt.intake.RequestAnalysis(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, analysisAccepted{Status: "queued", ExamID: req.ExamID})
}

func (rt *Router) analyzeImage(w http.ResponseWriter, r *http.Request) {
	req := domain.AnalysisRequest{
		ExamID:  r.PathValue("examID"),
		ImageID: r.PathValue("imageID"),
	}
	if err := rt.intake.RequestAnalysis(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, analysisAccepted{Status: "queued", ExamID: req.ExamID, ImageID: req.ImageID})
}

func (rt *Router) listFindings(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("examID")
	findings, err := rt.reader.ListFindings(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, findingsResponse{ExamID: examID, Count: len(findings), Findings: findings})
}

func (rt *Router) exportFindings(w http.ResponseWriter, r *http.Request) {
	examID := r.PathValue("examID")
	exam, err := rt.reader.GetExam(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	findings, err := rt.reader.ListFindings(r.Context(), examID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := report.FindingsWorkbook(exam, findings)
	if err != nil {
		writeError(w, r, fmt.Errorf("build findings workbook: %w", err))
		return
	}

	w.Header().Set("Content-Type", report.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "findings_"+sanitizeHeaderValue(examID)+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func sanitizeHeaderValue(v string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' || r == '\\' || r > 0x7e {
			return '_'
		}
		return r
	}, v)
}

type errorResponse struct {
	Error string `json:"error"`
}

type analysisAccepted struct {
	Status  string `json:"status"`
	ExamID  string `json:"exam_id"`
	ImageID string `json:"image_id,omitempty"`
}

type findingsResponse struct {
	ExamID   string           `json:"exam_id"`
	Count    int              `json:"count"`
	Findings []domain.Finding `json:"findings"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_handler_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: publicErrorMessage(status, err)})
}
