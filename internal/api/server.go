package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"classcast/internal/analysis"
	"classcast/internal/router"
	"classcast/pkg/interfaces"
	"classcast/pkg/types"
)

// maxBodyBytes bounds request bodies; problem statements and prompts are the largest
const maxBodyBytes = 2 << 20

// Presence is the membership surface plus the journal reads the API exposes
type Presence interface {
	interfaces.PresenceManager
	ListActivity(ctx context.Context, classCode string) ([]*types.Activity, error)
	RecordAnalysis(ctx context.Context, classCode string, success bool)
}

// Announcer pushes HTTP-originated changes to the realtime viewers of a class
type Announcer interface {
	AnnounceProblem(classCode, problemStatement string) error
	AnnounceStatus(classCode, studentID string, status types.StudentStatus) error
	AnnounceClassEnded(classCode, reason string) error
}

// Analyzer forwards prompts to the external generation service
type Analyzer interface {
	Analyze(ctx context.Context, promptText string) analysis.Result
}

// StatsProvider is satisfied by websocket.Registry and session.Store
type StatsProvider interface {
	GetStats() map[string]int
}

// HealthChecker is satisfied by the journal manager
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies wires the server. Journal and WebSocket are optional.
type Dependencies struct {
	Presence       Presence
	Announcer      Announcer
	Analyzer       Analyzer
	Journal        HealthChecker
	Registry       StatsProvider
	Store          StatsProvider
	WebSocket      http.Handler
	AllowedOrigins []string
}

// Server is the request/response boundary. It holds no classroom state of its own.
type Server struct {
	presence       Presence
	announcer      Announcer
	analyzer       Analyzer
	journal        HealthChecker
	registry       StatsProvider
	store          StatsProvider
	websocket      http.Handler
	allowedOrigins []string
	router         chi.Router
	startedAt      time.Time
}

// NewServer builds the chi router and registers every route
func NewServer(deps Dependencies) *Server {
	s := &Server{
		presence:       deps.Presence,
		announcer:      deps.Announcer,
		analyzer:       deps.Analyzer,
		journal:        deps.Journal,
		registry:       deps.Registry,
		store:          deps.Store,
		websocket:      deps.WebSocket,
		allowedOrigins: deps.AllowedOrigins,
		router:         chi.NewRouter(),
		startedAt:      time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	if s.websocket != nil {
		r.Get("/ws", s.websocket.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.jsonMiddleware)

		r.Get("/health", s.healthCheck)

		r.Post("/create-teacher", s.createTeacher)
		r.Post("/create-student", s.createStudent)
		r.Get("/students/{classCode}", s.getStudents)
		r.Post("/set-problem/{classCode}", s.setProblem)
		r.Get("/problem/{classCode}", s.getProblem)
		r.Post("/update-status/{classCode}/{studentId}", s.updateStatus)
		r.Post("/end-class/{classCode}", s.endClass)

		r.Route("/api", func(r chi.Router) {
			r.Post("/analyze-code", s.analyzeCode)
			r.Get("/classes/{classCode}/activity", s.getActivity)
		})
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// CreateStudentRequest is the body of POST /create-student
type CreateStudentRequest struct {
	Name      string `json:"name"`
	ClassCode string `json:"classCode"`
}

// SetProblemRequest is the body of POST /set-problem/{classCode}
type SetProblemRequest struct {
	ProblemStatement string `json:"problemStatement"`
	TeacherID        string `json:"teacherId"`
}

// UpdateStatusRequest is the body of POST /update-status/{classCode}/{studentId}
type UpdateStatusRequest struct {
	Status types.StudentStatus `json:"status"`
}

// EndClassRequest is the body of POST /end-class/{classCode}
type EndClassRequest struct {
	TeacherID string `json:"teacherId"`
}

// AnalyzeRequest is the body of POST /api/analyze-code. ClassCode only tags the journal entry.
type AnalyzeRequest struct {
	PromptText string `json:"promptText"`
	ClassCode  string `json:"classCode,omitempty"`
}

// ProblemResponse is returned by GET /problem/{classCode}
type ProblemResponse struct {
	ProblemStatement *string `json:"problemStatement"`
}

// SuccessResponse acknowledges a mutation
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Uptime      string         `json:"uptime"`
	Journal     string         `json:"journal"`
	Connections map[string]int `json:"connections"`
	Classes     map[string]int `json:"classes"`
}

// POST /create-teacher
func (s *Server) createTeacher(w http.ResponseWriter, r *http.Request) {
	created, err := s.presence.CreateTeacher(r.Context())
	if err != nil {
		log.Printf("Failed to create teacher: %v", err)
		s.sendError(w, "Failed to create class", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, created)
}

// POST /create-student
func (s *Server) createStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	created, err := s.presence.CreateStudent(r.Context(), req.Name, req.ClassCode)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidClassCode) {
			s.sendError(w, "Invalid or expired class code", http.StatusBadRequest)
			return
		}
		s.sendMappedError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, created)
}

// GET /students/{classCode}
func (s *Server) getStudents(w http.ResponseWriter, r *http.Request) {
	roster, err := s.presence.GetRoster(r.Context(), chi.URLParam(r, "classCode"))
	if err != nil {
		s.sendMappedError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, roster)
}

// POST /set-problem/{classCode}
func (s *Server) setProblem(w http.ResponseWriter, r *http.Request) {
	classCode := types.NormalizeClassCode(chi.URLParam(r, "classCode"))

	var req SetProblemRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.presence.SetProblem(r.Context(), classCode, req.TeacherID, req.ProblemStatement); err != nil {
		s.sendMappedError(w, err)
		return
	}

	if err := s.announcer.AnnounceProblem(classCode, req.ProblemStatement); err != nil {
		log.Printf("Failed to announce problem: class=%s error=%v", classCode, err)
	}

	s.sendJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// GET /problem/{classCode}
func (s *Server) getProblem(w http.ResponseWriter, r *http.Request) {
	problem, err := s.presence.GetProblem(r.Context(), chi.URLParam(r, "classCode"))
	if err != nil {
		s.sendMappedError(w, err)
		return
	}

	s.sendJSON(w, http.StatusOK, ProblemResponse{ProblemStatement: problem})
}

// POST /update-status/{classCode}/{studentId}
func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	classCode := types.NormalizeClassCode(chi.URLParam(r, "classCode"))
	studentID := chi.URLParam(r, "studentId")

	var req UpdateStatusRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.presence.UpdateStatus(r.Context(), classCode, studentID, req.Status); err != nil {
		s.sendMappedError(w, err)
		return
	}

	if err := s.announcer.AnnounceStatus(classCode, studentID, req.Status); err != nil {
		log.Printf("Failed to announce status: class=%s student=%s error=%v", classCode, studentID, err)
	}

	s.sendJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// POST /end-class/{classCode}
func (s *Server) endClass(w http.ResponseWriter, r *http.Request) {
	classCode := types.NormalizeClassCode(chi.URLParam(r, "classCode"))

	var req EndClassRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.presence.EndClass(r.Context(), classCode, req.TeacherID); err != nil {
		s.sendMappedError(w, err)
		return
	}

	if err := s.announcer.AnnounceClassEnded(classCode, router.ReasonEnded); err != nil {
		log.Printf("Failed to announce class end: class=%s error=%v", classCode, err)
	}

	s.sendJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// POST /api/analyze-code always answers 200; failures travel in the body
func (s *Server) analyzeCode(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result := s.analyzer.Analyze(r.Context(), req.PromptText)
	if !result.Success {
		log.Printf("Analysis failed: class=%s error=%s", req.ClassCode, result.Error)
	}
	s.presence.RecordAnalysis(r.Context(), types.NormalizeClassCode(req.ClassCode), result.Success)

	s.sendJSON(w, http.StatusOK, result)
}

// GET /api/classes/{classCode}/activity
func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := s.presence.ListActivity(r.Context(), chi.URLParam(r, "classCode"))
	if err != nil {
		log.Printf("Failed to list activity: %v", err)
		s.sendError(w, "Failed to read activity", http.StatusInternalServerError)
		return
	}

	s.sendJSON(w, http.StatusOK, activity)
}

// GET /health reports 503 when the journal is unreachable
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	journalStatus := "disabled"

	if s.journal != nil {
		journalStatus = "healthy"
		if err := s.journal.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			journalStatus = fmt.Sprintf("error: %v", err)
		}
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Journal:     journalStatus,
		Connections: statsOf(s.registry),
		Classes:     statsOf(s.store),
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func statsOf(provider StatsProvider) map[string]int {
	if provider == nil {
		return map[string]int{}
	}
	return provider.GetStats()
}

// decodeBody parses a JSON body. An empty body decodes to the zero value.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
	return false
}

// sendMappedError translates domain errors into status codes
func (s *Server) sendMappedError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("Unhandled API error: %v", err)
		s.sendError(w, "Internal server error", code)
		return
	}
	s.sendError(w, errorMessage(err), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrValidation),
		errors.Is(err, interfaces.ErrConflict),
		errors.Is(err, types.ErrInvalidStatus),
		errors.Is(err, types.ErrInvalidClassCode),
		errors.Is(err, types.ErrInvalidUserID),
		errors.Is(err, types.ErrNameTooLong),
		errors.Is(err, types.ErrTextTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, interfaces.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, types.ErrInvalidStatus):
		return "Invalid status"
	default:
		return err.Error()
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// sendError writes the {"error": message} body every client expects
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, ErrorResponse{Error: message})
}

// corsMiddleware echoes allowed origins. An empty list allows all.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
