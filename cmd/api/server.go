package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tolkflow/auth"
	"tolkflow/booking"
	"tolkflow/reporting"
	"tolkflow/user"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// lifecycleService is the booking surface the handlers call.
type lifecycleService interface {
	Store(ctx context.Context, actor user.Profile, params booking.CreateParams) (booking.Result, error)
	AttachEmail(ctx context.Context, params booking.AttachEmailParams) (booking.Result, error)
	Get(ctx context.Context, jobID string) (booking.Job, error)
	Accept(ctx context.Context, actor user.Profile, jobID string) (booking.Result, error)
	AcceptByID(ctx context.Context, actor user.Profile, jobID string) (booking.Result, error)
	Cancel(ctx context.Context, actor user.Profile, jobID string) (booking.Result, error)
	EndSession(ctx context.Context, jobID, completedBy string) (booking.Result, error)
	MarkCustomerNotCalled(ctx context.Context, jobID string) (booking.Result, error)
	Update(ctx context.Context, actor user.Profile, jobID string, params booking.UpdateParams) (booking.Result, error)
	Reopen(ctx context.Context, jobID string) (booking.Result, error)
	UpdateDistance(ctx context.Context, params booking.DistanceParams) (booking.Result, error)
	ResendNotifications(ctx context.Context, jobID string) (booking.Result, error)
	ResendSMSNotifications(ctx context.Context, jobID string) (booking.Result, error)
}

// reportingService is the read-side surface the handlers call.
type reportingService interface {
	JobsForUser(ctx context.Context, u user.Profile) (reporting.UserJobs, error)
	History(ctx context.Context, u user.Profile, page int) (reporting.Page, error)
	All(ctx context.Context, actor user.Profile, filters reporting.Filters) (reporting.Page, error)
	Alerts(ctx context.Context, actor user.Profile, filters reporting.Filters) (reporting.Page, error)
	ExpiredNotAccepted(ctx context.Context, actor user.Profile, filters reporting.Filters) (reporting.Page, error)
	SetIgnore(ctx context.Context, jobID string) error
	SetIgnoreExpired(ctx context.Context, jobID string) error
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.Account, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, user.Role, error)
}

type profileDirectory interface {
	GetByID(ctx context.Context, id string) (user.Profile, error)
}

type jobBoard interface {
	PotentialJobs(ctx context.Context, t user.Profile) ([]booking.Job, error)
}

// Server is the thin HTTP boundary over the lifecycle, reporting and auth
// services. It translates requests into operation calls and renders the
// structured results; no business rules live here.
type Server struct {
	bookings  lifecycleService
	reports   reportingService
	auth      authService
	directory profileDirectory
	board     jobBoard
	log       *slog.Logger
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("GET /api/jobs", s.requireAuth(s.handleUserJobs))
	mux.Handle("GET /api/jobs/history", s.requireAuth(s.handleHistory))
	mux.Handle("GET /api/jobs/potential", s.requireAuth(s.handlePotentialJobs))
	mux.Handle("POST /api/jobs", s.requireAuth(s.handleCreateJob))
	mux.Handle("POST /api/jobs/email", s.requireAuth(s.handleAttachEmail))
	mux.Handle("POST /api/jobs/accept", s.requireAuth(s.handleAccept))
	mux.Handle("GET /api/jobs/{id}", s.requireAuth(s.handleJob))
	mux.Handle("PUT /api/jobs/{id}", s.requireAuth(s.handleUpdateJob))
	mux.Handle("POST /api/jobs/{id}/accept", s.requireAuth(s.handleAcceptByID))
	mux.Handle("POST /api/jobs/{id}/cancel", s.requireAuth(s.handleCancel))
	mux.Handle("POST /api/jobs/{id}/end", s.requireAuth(s.handleEnd))
	mux.Handle("POST /api/jobs/{id}/not-called", s.requireAuth(s.handleNotCalled))
	mux.Handle("POST /api/jobs/{id}/reopen", s.requireAuth(s.handleReopen))
	mux.Handle("POST /api/jobs/{id}/distance", s.requireAuth(s.handleDistance))
	mux.Handle("POST /api/jobs/{id}/resend-push", s.requireAuth(s.handleResendPush))
	mux.Handle("POST /api/jobs/{id}/resend-sms", s.requireAuth(s.handleResendSMS))

	mux.Handle("GET /api/admin/jobs", s.requireAuth(s.handleAdminJobs))
	mux.Handle("GET /api/admin/alerts", s.requireAuth(s.handleAlerts))
	mux.Handle("GET /api/admin/expired", s.requireAuth(s.handleExpired))
	mux.Handle("POST /api/admin/jobs/{id}/ignore", s.requireAuth(s.handleIgnore))
	mux.Handle("POST /api/admin/jobs/{id}/ignore-expired", s.requireAuth(s.handleIgnoreExpired))

	return mux
}

// requireAuth verifies the bearer token, loads the caller's profile and
// stashes it in the request context.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, user.Profile)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		actor, err := s.directory.GetByID(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unknown account")
			return
		}
		actor.Role = role

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx), actor)
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := s.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.serverError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":    account.ID,
		"email": account.Email,
		"role":  account.Role,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.serverError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"role":  result.Account.Role,
	})
}

func (s *Server) handleUserJobs(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	jobs, err := s.reports.JobsForUser(r.Context(), actor)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"emergencyJobs": jobResponses(jobs.Emergency),
		"normalJobs":    jobResponses(jobs.Normal),
		"usertype":      jobs.UserType,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	result, err := s.reports.History(r.Context(), actor, page)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(result))
}

func (s *Server) handlePotentialJobs(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if actor.Role != user.RoleTranslator {
		writeError(w, http.StatusForbidden, "translator role required")
		return
	}
	jobs, err := s.board.PotentialJobs(r.Context(), actor)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobResponses(jobs)})
}

type createJobRequest struct {
	FromLanguageID    int64    `json:"from_language_id"`
	Immediate         string   `json:"immediate"`
	DueDate           string   `json:"due_date"`
	DueTime           string   `json:"due_time"`
	Duration          int      `json:"duration"`
	CustomerPhoneType *string  `json:"customer_phone_type"`
	CustomerPhysical  string   `json:"customer_physical_type"`
	JobFor            []string `json:"job_for"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := booking.CreateParams{
		LanguageID:   req.FromLanguageID,
		Immediate:    req.Immediate == "yes",
		DueDate:      req.DueDate,
		DueTime:      req.DueTime,
		Duration:     req.Duration,
		PhysicalType: req.CustomerPhysical == "yes",
		JobFor:       req.JobFor,
		ByAdmin:      actor.Role.IsAdmin(),
	}
	if req.CustomerPhoneType != nil {
		phone := *req.CustomerPhoneType == "yes"
		params.PhoneType = &phone
	}

	s.renderResult(w, r)(s.bookings.Store(r.Context(), actor, params))
}

func (s *Server) handleAttachEmail(w http.ResponseWriter, r *http.Request, _ user.Profile) {
	var req struct {
		JobID        string `json:"user_email_job_id"`
		UserEmail    string `json:"user_email"`
		Reference    string `json:"reference"`
		Address      string `json:"address"`
		Instructions string `json:"instructions"`
		Town         string `json:"town"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.renderResult(w, r)(s.bookings.AttachEmail(r.Context(), booking.AttachEmailParams{
		JobID:        req.JobID,
		UserEmail:    req.UserEmail,
		Reference:    req.Reference,
		Address:      req.Address,
		Instructions: req.Instructions,
		Town:         req.Town,
	}))
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, _ user.Profile) {
	job, err := s.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, booking.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.renderResult(w, r)(s.bookings.Accept(r.Context(), actor, req.JobID))
}

func (s *Server) handleAcceptByID(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	s.renderResult(w, r)(s.bookings.AcceptByID(r.Context(), actor, r.PathValue("id")))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	s.renderResult(w, r)(s.bookings.Cancel(r.Context(), actor, r.PathValue("id")))
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	s.renderResult(w, r)(s.bookings.EndSession(r.Context(), r.PathValue("id"), actor.ID))
}

func (s *Server) handleNotCalled(w http.ResponseWriter, r *http.Request, _ user.Profile) {
	s.renderResult(w, r)(s.bookings.MarkCustomerNotCalled(r.Context(), r.PathValue("id")))
}

type updateJobRequest struct {
	Due             string `json:"due"`
	FromLanguageID  int64  `json:"from_language_id"`
	Status          string `json:"status"`
	TranslatorID    string `json:"translator"`
	TranslatorEmail string `json:"translator_email"`
	AdminComments   string `json:"admin_comments"`
	Reference       string `json:"reference"`
	SessionTime     string `json:"session_time"`
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if !actor.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}

	var req updateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := booking.UpdateParams{
		LanguageID:      req.FromLanguageID,
		Status:          booking.Status(req.Status),
		TranslatorID:    req.TranslatorID,
		TranslatorEmail: req.TranslatorEmail,
		AdminComments:   req.AdminComments,
		Reference:       req.Reference,
		SessionTime:     req.SessionTime,
	}
	if req.Due != "" {
		due, err := time.Parse("2006-01-02 15:04:05", req.Due)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid due timestamp")
			return
		}
		params.Due = due
	}

	s.renderResult(w, r)(s.bookings.Update(r.Context(), actor, r.PathValue("id"), params))
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if !actor.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	s.renderResult(w, r)(s.bookings.Reopen(r.Context(), r.PathValue("id")))
}

func (s *Server) handleDistance(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	var req struct {
		Distance        string `json:"distance"`
		Time            string `json:"time"`
		SessionTime     string `json:"session_time"`
		AdminComments   string `json:"admincomment"`
		Flagged         bool   `json:"flagged"`
		ManuallyHandled bool   `json:"manually_handled"`
		ByAdmin         bool   `json:"by_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.renderResult(w, r)(s.bookings.UpdateDistance(r.Context(), booking.DistanceParams{
		JobID:           r.PathValue("id"),
		Distance:        req.Distance,
		TravelTime:      req.Time,
		SessionTime:     req.SessionTime,
		AdminComments:   req.AdminComments,
		Flagged:         req.Flagged,
		ManuallyHandled: req.ManuallyHandled,
		ByAdmin:         req.ByAdmin,
	}))
}

func (s *Server) handleResendPush(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if !actor.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	s.renderResult(w, r)(s.bookings.ResendNotifications(r.Context(), r.PathValue("id")))
}

func (s *Server) handleResendSMS(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if !actor.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	s.renderResult(w, r)(s.bookings.ResendSMSNotifications(r.Context(), r.PathValue("id")))
}

func (s *Server) handleAdminJobs(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	page, err := s.reports.All(r.Context(), actor, filtersFromQuery(r))
	if err != nil {
		s.reportingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(page))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	page, err := s.reports.Alerts(r.Context(), actor, filtersFromQuery(r))
	if err != nil {
		s.reportingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(page))
}

func (s *Server) handleExpired(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	page, err := s.reports.ExpiredNotAccepted(r.Context(), actor, filtersFromQuery(r))
	if err != nil {
		s.reportingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pageResponse(page))
}

func (s *Server) handleIgnore(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if !actor.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	if err := s.reports.SetIgnore(r.Context(), r.PathValue("id")); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) handleIgnoreExpired(w http.ResponseWriter, r *http.Request, actor user.Profile) {
	if !actor.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	if err := s.reports.SetIgnoreExpired(r.Context(), r.PathValue("id")); err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// renderResult writes a lifecycle Result, mapping infrastructure errors to
// 500 and not-found to 404. Domain failures arrive as fail results and render
// as 200 with status "fail", per the boundary contract.
func (s *Server) renderResult(w http.ResponseWriter, r *http.Request) func(booking.Result, error) {
	return func(result booking.Result, err error) {
		if err != nil {
			if errors.Is(err, booking.ErrJobNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			s.serverError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) reportingError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, reporting.ErrNotAuthorized) {
		writeError(w, http.StatusForbidden, "admin role required")
		return
	}
	s.serverError(w, r, err)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func filtersFromQuery(r *http.Request) reporting.Filters {
	q := r.URL.Query()
	f := reporting.Filters{
		Statuses:        q["status"],
		JobTypes:        q["job_type"],
		CustomerEmail:   q.Get("customer_email"),
		TranslatorEmail: q.Get("translator_email"),
		TimeType:        q.Get("filter_timetype"),
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	for _, raw := range q["lang"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.LanguageIDs = append(f.LanguageIDs, id)
		}
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse("2006-01-02", from); err == nil {
			f.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse("2006-01-02", to); err == nil {
			end := t.Add(24*time.Hour - time.Minute)
			f.To = &end
		}
	}
	return f
}

type jobPayload struct {
	ID                   string  `json:"id"`
	UserID               string  `json:"user_id"`
	FromLanguageID       int64   `json:"from_language_id"`
	Immediate            bool    `json:"immediate"`
	Due                  string  `json:"due"`
	Duration             int     `json:"duration"`
	Status               string  `json:"status"`
	Gender               *string `json:"gender"`
	Certified            string  `json:"certified"`
	JobType              string  `json:"job_type"`
	CustomerPhoneType    bool    `json:"customer_phone_type"`
	CustomerPhysicalType bool    `json:"customer_physical_type"`
	Town                 string  `json:"town"`
	SessionTime          string  `json:"session_time,omitempty"`
	WillExpireAt         string  `json:"will_expire_at"`
}

func jobResponse(j booking.Job) jobPayload {
	return jobPayload{
		ID:                   j.ID,
		UserID:               j.UserID,
		FromLanguageID:       j.LanguageID,
		Immediate:            j.Immediate,
		Due:                  j.Due.Format(time.RFC3339),
		Duration:             j.Duration,
		Status:               string(j.Status),
		Gender:               j.Gender,
		Certified:            string(j.Certified),
		JobType:              string(j.JobType),
		CustomerPhoneType:    j.CustomerPhoneType,
		CustomerPhysicalType: j.CustomerPhysicalType,
		Town:                 j.Town,
		SessionTime:          j.SessionTime,
		WillExpireAt:         j.WillExpireAt.Format(time.RFC3339),
	}
}

func jobResponses(jobs []booking.Job) []jobPayload {
	out := make([]jobPayload, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse(j))
	}
	return out
}

func pageResponse(p reporting.Page) map[string]any {
	return map[string]any{
		"jobs":        jobResponses(p.Jobs),
		"page":        p.Page,
		"total":       p.Total,
		"total_pages": p.TotalPages,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
