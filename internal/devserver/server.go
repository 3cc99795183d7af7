package devserver

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/sha3"

	"github.com/docsier/docsier-go/internal/domain"
	"github.com/docsier/docsier-go/internal/observability"
)

// Identity is the single seeded user the devserver authenticates.
type Identity struct {
	ID    string
	Email string
	Name  string
}

type Config struct {
	TokenSecret string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	User        Identity
	Redis       *redis.Client
	UploadTTL   time.Duration
}

// Server is a local stand-in for the Docsier backend: the full client-facing
// HTTP contract plus the identity endpoints, backed by gorm and optionally
// redis for upload idempotency.
type Server struct {
	store  *Store
	tokens *TokenManager
	user   Identity
	idem   *UploadIdempotencyStore
	logger *slog.Logger
}

func New(store *Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.UploadTTL == 0 {
		cfg.UploadTTL = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	var idem *UploadIdempotencyStore
	if cfg.Redis != nil {
		idem = NewUploadIdempotencyStore(cfg.Redis, cfg.UploadTTL)
	}
	return &Server{
		store:  store,
		tokens: NewTokenManager("docsier-devserver", cfg.TokenSecret, cfg.AccessTTL, cfg.RefreshTTL),
		user:   cfg.User,
		idem:   idem,
		logger: logger,
	}
}

func (s *Server) Store() *Store { return s.store }

// IssueLoginToken mints a refresh token the way the website hands one to the
// client via the inbound URL, recording its digest for later exchange.
func (s *Server) IssueLoginToken() (string, error) {
	refresh, err := s.tokens.SignRefreshToken(s.user.ID)
	if err != nil {
		return "", err
	}
	err = s.store.CreateAuthSession(&AuthSessionRecord{
		UserID:             s.user.ID,
		RefreshTokenDigest: digest(refresh),
		ExpiresAt:          time.Now().Add(s.tokens.RefreshTTL()),
	})
	if err != nil {
		return "", err
	}
	return refresh, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/auth/token", s.handleTokenExchange)
	r.Get("/auth/user", s.handleUser)
	r.Post("/auth/logout", s.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/clients", s.handleListClients)
		r.Post("/clients", s.handleCreateClient)
		r.Get("/urgent-deadlines", s.handleUrgentDeadlines)
		r.Get("/validations/classification/{documentId}", s.handleValidation)

		r.Route("/clients/{clientId}", func(r chi.Router) {
			r.Get("/documents", s.handleListDocuments)
			r.Post("/documents", s.handleUploadDocument)
			r.Delete("/documents/{documentId}", s.handleDeleteDocument)
			r.Get("/documents/stats", s.handleDocumentStats)
			r.Get("/deadlines", s.handleListDeadlines)
			r.Get("/deadlines/stats", s.handleDeadlineStats)
			r.Patch("/deadlines/{deadlineId}/complete", s.handleCompleteDeadline)
			r.Patch("/deadlines/{deadlineId}/uncomplete", s.handleUncompleteDeadline)
			r.Get("/analysis", s.handleAnalyses)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		observability.RecordDevserverRequest(route, strconv.Itoa(ww.Status()))
		s.logger.Info("request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleTokenExchange(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	if grant := r.PostFormValue("grant_type"); grant != "refresh_token" {
		writeError(w, http.StatusBadRequest, "unsupported grant_type")
		return
	}
	refresh := r.PostFormValue("refresh_token")
	claims, err := s.tokens.ParseRefreshToken(refresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	session, err := s.store.FindAuthSessionByDigest(digest(refresh))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}
	if session == nil || session.RevokedAt != nil || session.ExpiresAt.Before(time.Now()) {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// Rotate: the presented refresh token is spent, a new pair is issued.
	access, err := s.tokens.SignAccessToken(claims.Subject, s.user.Email, s.user.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	newRefresh, err := s.tokens.SignRefreshToken(claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token signing failed")
		return
	}
	if err := s.store.RevokeAuthSession(session.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "session rotation failed")
		return
	}
	if err := s.store.CreateAuthSession(&AuthSessionRecord{
		UserID:             claims.Subject,
		RefreshTokenDigest: digest(newRefresh),
		ExpiresAt:          time.Now().Add(s.tokens.RefreshTTL()),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "session rotation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"refresh_token": newRefresh,
		"token_type":    "bearer",
		"expires_in":    int(s.tokens.accessTTL.Seconds()),
	})
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            claims.Subject,
		"email":         claims.Email,
		"user_metadata": map[string]string{"full_name": claims.Name},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	if err := s.store.RevokeAuthSessionsForUser(claims.Subject); err != nil {
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		writeError(w, http.StatusUnauthorized, "missing access token")
		return nil, false
	}
	claims, err := s.tokens.ParseAccessToken(strings.TrimSpace(header[7:]))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid access token")
		return nil, false
	}
	return claims, true
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.store.ListClients()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list clients failed")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var nc domain.NewClient
	if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
		writeError(w, http.StatusBadRequest, "malformed client body")
		return
	}
	if nc.Name == "" || nc.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}
	rec := &ClientRecord{
		ID:        uuid.NewString(),
		Name:      nc.Name,
		Email:     nc.Email,
		Phone:     nc.Phone,
		Company:   nc.Company,
		Active:    nc.Active,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateClient(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "create client failed")
		return
	}
	writeJSON(w, http.StatusCreated, domain.Client{
		ID:        rec.ID,
		Name:      rec.Name,
		Email:     rec.Email,
		Phone:     rec.Phone,
		Company:   rec.Company,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
	})
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListDocuments(chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list documents failed")
		return
	}
	docs := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		docs = append(docs, map[string]any{
			"document_id":    rec.ID,
			"filename":       rec.Filename,
			"classification": classificationFor(rec),
			"created_at":     rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func classificationFor(rec DocumentRecord) domain.DocumentClassification {
	c := domain.DocumentClassification{
		DocType:    domain.NormalizeDocumentType(domain.DocumentType(rec.DocType)),
		MatterID:   rec.MatterID,
		Summary:    rec.Summary,
		Confidence: rec.Confidence,
	}
	if rec.Tags != "" {
		_ = json.Unmarshal([]byte(rec.Tags), &c.Tags)
	}
	if rec.Entities != "" {
		_ = json.Unmarshal([]byte(rec.Entities), &c.KeyEntities)
	}
	return c
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	exists, err := s.store.ClientExists(clientID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "client lookup failed")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "client not found")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer func() { _ = file.Close() }()
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}

	key := digest(clientID + "|" + header.Filename)
	if docID, hit, err := s.idem.Lookup(r.Context(), key); err == nil && hit {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"document_id": docID,
			"filename":    header.Filename,
		})
		return
	}

	// Classification runs asynchronously in the real backend; the fresh
	// record carries the unclassified placeholder.
	rec := &DocumentRecord{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		Filename:  header.Filename,
		DocType:   string(domain.DocOther),
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateDocument(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "store document failed")
		return
	}
	if err := s.idem.Remember(r.Context(), key, rec.ID); err != nil {
		s.logger.Warn("upload idempotency write failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"document_id":         rec.ID,
		"filename":            rec.Filename,
		"deadlines_extracted": 0,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteDocument(chi.URLParam(r, "clientId"), chi.URLParam(r, "documentId"))
	if errors.Is(err, ErrDocumentNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete document failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDocumentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DocumentStats(chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "document stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListDeadlines(w http.ResponseWriter, r *http.Request) {
	completed := r.URL.Query().Get("completed") == "true"
	records, err := s.store.ListDeadlines(chi.URLParam(r, "clientId"), completed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list deadlines failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deadlines": deadlinesOut(records)})
}

func deadlinesOut(records []DeadlineRecord) []domain.Deadline {
	out := make([]domain.Deadline, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.Deadline{
			ID:                   rec.ID,
			Date:                 rec.Date,
			Description:          rec.Description,
			WorkingDaysRemaining: rec.WorkingDaysRemaining,
			RiskLevel:            riskLevelFor(rec.WorkingDaysRemaining),
			SourceID:             rec.SourceID,
			Completed:            rec.Completed,
		})
	}
	return out
}

func (s *Server) handleDeadlineStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.DeadlineStats(chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "deadline stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCompleteDeadline(w http.ResponseWriter, r *http.Request) {
	s.setDeadlineCompleted(w, r, true)
}

func (s *Server) handleUncompleteDeadline(w http.ResponseWriter, r *http.Request) {
	s.setDeadlineCompleted(w, r, false)
}

func (s *Server) setDeadlineCompleted(w http.ResponseWriter, r *http.Request, completed bool) {
	err := s.store.SetDeadlineCompleted(chi.URLParam(r, "clientId"), chi.URLParam(r, "deadlineId"), completed)
	if errors.Is(err, ErrDeadlineNotFound) {
		writeError(w, http.StatusNotFound, "deadline not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "update deadline failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUrgentDeadlines(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.store.UrgentDeadlines(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "urgent deadlines failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deadlines": deadlinesOut(records)})
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	analysisType := r.URL.Query().Get("analysis_type")
	if analysisType != "" && !domain.AnalysisType(analysisType).Valid() {
		writeError(w, http.StatusBadRequest, "unknown analysis_type")
		return
	}
	analyses, err := s.store.ListAnalyses(chi.URLParam(r, "clientId"), analysisType)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list analyses failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": analyses})
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.Validation(chi.URLParam(r, "documentId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "validation lookup failed")
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "validation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": v})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func digest(value string) string {
	sum := sha3.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
