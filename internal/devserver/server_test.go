package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/docsier/docsier-go/internal/domain"
)

func newTestServer(t *testing.T, withRedis bool) (*Server, *httptest.Server) {
	t.Helper()
	store, err := OpenStore(":memory:", "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	cfg := Config{
		TokenSecret: "test-secret",
		User:        Identity{ID: "user-1", Email: "dev@docsier.test", Name: "Dev User"},
	}
	if withRedis {
		mr := miniredis.RunT(t)
		cfg.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	srv := New(store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func exchangeToken(t *testing.T, ts *httptest.Server, refresh string) (access, newRefresh string, status int) {
	t.Helper()
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refresh}}
	resp, err := http.PostForm(ts.URL+"/auth/token", form)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", resp.StatusCode
	}
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode exchange response: %v", err)
	}
	return body.AccessToken, body.RefreshToken, resp.StatusCode
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestTokenExchangeRotatesRefreshToken(t *testing.T) {
	srv, ts := newTestServer(t, false)

	refresh, err := srv.IssueLoginToken()
	if err != nil {
		t.Fatalf("issue login token: %v", err)
	}

	access, newRefresh, status := exchangeToken(t, ts, refresh)
	if status != http.StatusOK {
		t.Fatalf("exchange status = %d, want 200", status)
	}
	if access == "" || newRefresh == "" {
		t.Fatal("exchange returned empty tokens")
	}
	if newRefresh == refresh {
		t.Fatal("refresh token was not rotated")
	}

	// The spent token must be unusable.
	if _, _, status := exchangeToken(t, ts, refresh); status != http.StatusUnauthorized {
		t.Fatalf("reused refresh token status = %d, want 401", status)
	}
	// The rotated one still works.
	if _, _, status := exchangeToken(t, ts, newRefresh); status != http.StatusOK {
		t.Fatalf("rotated refresh token status = %d, want 200", status)
	}
}

func TestTokenExchangeRejectsGarbage(t *testing.T) {
	_, ts := newTestServer(t, false)
	if _, _, status := exchangeToken(t, ts, "not-a-jwt"); status != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d, want 401", status)
	}
}

func TestUserEndpointReturnsSeededIdentity(t *testing.T) {
	srv, ts := newTestServer(t, false)
	refresh, _ := srv.IssueLoginToken()
	access, _, _ := exchangeToken(t, ts, refresh)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("user status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		UserMetadata struct {
			FullName string `json:"full_name"`
		} `json:"user_metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if body.ID != "user-1" || body.Email != "dev@docsier.test" || body.UserMetadata.FullName != "Dev User" {
		t.Fatalf("unexpected identity: %+v", body)
	}
}

func TestLogoutRevokesSessions(t *testing.T) {
	srv, ts := newTestServer(t, false)
	refresh, _ := srv.IssueLoginToken()
	access, newRefresh, _ := exchangeToken(t, ts, refresh)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}
	if _, _, status := exchangeToken(t, ts, newRefresh); status != http.StatusUnauthorized {
		t.Fatalf("post-logout exchange status = %d, want 401", status)
	}
}

func TestClientListIncludesDocumentCounts(t *testing.T) {
	srv, ts := newTestServer(t, false)
	seedClient(t, srv, "client-a", "Acme")
	seedDocument(t, srv, "client-a", "doc-1", "retainer.pdf", "contract")
	seedDocument(t, srv, "client-a", "doc-2", "invoice.pdf", "invoice")
	seedClient(t, srv, "client-b", "Globex")

	var clients []domain.Client
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/clients", nil, &clients); status != http.StatusOK {
		t.Fatalf("list clients status = %d", status)
	}
	if len(clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(clients))
	}
	if clients[0].DocumentCount != 2 || clients[1].DocumentCount != 0 {
		t.Fatalf("document counts = %d/%d, want 2/0", clients[0].DocumentCount, clients[1].DocumentCount)
	}
}

func TestCreateClientRequiresNameAndEmail(t *testing.T) {
	_, ts := newTestServer(t, false)
	status := doJSON(t, http.MethodPost, ts.URL+"/api/clients", domain.NewClient{Name: "No Email"}, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("create status = %d, want 400", status)
	}

	var created domain.Client
	status = doJSON(t, http.MethodPost, ts.URL+"/api/clients",
		domain.NewClient{Name: "Acme", Email: "acme@example.com", Active: true}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", status)
	}
	if created.ID == "" || created.Name != "Acme" {
		t.Fatalf("unexpected created client: %+v", created)
	}
}

func TestUploadIsIdempotentWithinWindow(t *testing.T) {
	srv, ts := newTestServer(t, true)
	seedClient(t, srv, "client-a", "Acme")

	first := uploadFile(t, ts, "client-a", "contract.pdf")
	second := uploadFile(t, ts, "client-a", "contract.pdf")
	if first != second {
		t.Fatalf("duplicate upload produced new id: %s vs %s", first, second)
	}

	docs, err := srv.Store().ListDocuments("client-a")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
}

func TestUploadWithoutRedisAlwaysCreates(t *testing.T) {
	srv, ts := newTestServer(t, false)
	seedClient(t, srv, "client-a", "Acme")

	first := uploadFile(t, ts, "client-a", "contract.pdf")
	second := uploadFile(t, ts, "client-a", "contract.pdf")
	if first == second {
		t.Fatal("expected distinct ids without idempotency store")
	}
}

func TestUploadToUnknownClientIs404(t *testing.T) {
	_, ts := newTestServer(t, false)
	status := uploadFileStatus(t, ts, "nope", "contract.pdf")
	if status != http.StatusNotFound {
		t.Fatalf("upload status = %d, want 404", status)
	}
}

func TestDeadlineCompleteAndStats(t *testing.T) {
	srv, ts := newTestServer(t, false)
	seedClient(t, srv, "client-a", "Acme")
	seedDeadline(t, srv, "client-a", "dl-1", -2)
	seedDeadline(t, srv, "client-a", "dl-2", 5)
	seedDeadline(t, srv, "client-a", "dl-3", 30)

	var stats domain.DeadlineStats
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/clients/client-a/deadlines/stats", nil, &stats); status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	if stats.Total != 3 || stats.Overdue != 1 || stats.High != 1 || stats.Low != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if status := doJSON(t, http.MethodPatch, ts.URL+"/api/clients/client-a/deadlines/dl-1/complete", nil, nil); status != http.StatusOK {
		t.Fatalf("complete status = %d", status)
	}

	var active struct {
		Deadlines []domain.Deadline `json:"deadlines"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/api/clients/client-a/deadlines", nil, &active)
	if len(active.Deadlines) != 2 {
		t.Fatalf("active deadlines = %d, want 2", len(active.Deadlines))
	}
	var completed struct {
		Deadlines []domain.Deadline `json:"deadlines"`
	}
	doJSON(t, http.MethodGet, ts.URL+"/api/clients/client-a/deadlines?completed=true", nil, &completed)
	if len(completed.Deadlines) != 1 || completed.Deadlines[0].ID != "dl-1" {
		t.Fatalf("completed deadlines = %+v", completed.Deadlines)
	}

	if status := doJSON(t, http.MethodPatch, ts.URL+"/api/clients/client-a/deadlines/missing/complete", nil, nil); status != http.StatusNotFound {
		t.Fatalf("missing deadline status = %d, want 404", status)
	}
}

func TestUrgentDeadlinesOrderedAndLimited(t *testing.T) {
	srv, ts := newTestServer(t, false)
	seedClient(t, srv, "client-a", "Acme")
	seedDeadline(t, srv, "client-a", "dl-low", 20)
	seedDeadline(t, srv, "client-a", "dl-overdue", -1)
	seedDeadline(t, srv, "client-a", "dl-soon", 2)

	var body struct {
		Deadlines []domain.Deadline `json:"deadlines"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/urgent-deadlines?limit=2", nil, &body); status != http.StatusOK {
		t.Fatalf("urgent status = %d", status)
	}
	if len(body.Deadlines) != 2 {
		t.Fatalf("urgent deadlines = %d, want 2", len(body.Deadlines))
	}
	if body.Deadlines[0].ID != "dl-overdue" || body.Deadlines[1].ID != "dl-soon" {
		t.Fatalf("unexpected ordering: %s, %s", body.Deadlines[0].ID, body.Deadlines[1].ID)
	}
	if body.Deadlines[0].RiskLevel != domain.RiskOverdue {
		t.Fatalf("risk level = %s, want overdue", body.Deadlines[0].RiskLevel)
	}
}

func TestValidationLookup(t *testing.T) {
	srv, ts := newTestServer(t, false)
	err := srv.Store().SaveValidation("doc-1", &domain.ValidationResult{
		ValidationStatus: domain.ValidationValidated,
		ConfidenceScore:  0.9,
	})
	if err != nil {
		t.Fatalf("save validation: %v", err)
	}

	var body struct {
		Validation domain.ValidationResult `json:"validation"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/validations/classification/doc-1", nil, &body); status != http.StatusOK {
		t.Fatalf("validation status = %d", status)
	}
	if body.Validation.ValidationStatus != domain.ValidationValidated {
		t.Fatalf("validation status field = %s", body.Validation.ValidationStatus)
	}

	if status := doJSON(t, http.MethodGet, ts.URL+"/api/validations/classification/absent", nil, nil); status != http.StatusNotFound {
		t.Fatalf("absent validation status = %d, want 404", status)
	}
}

func TestAnalysisTypeFilter(t *testing.T) {
	srv, ts := newTestServer(t, false)
	result, _ := json.Marshal(domain.AnalysisResult{Summary: "steady", RiskLevel: domain.RiskLow})
	err := srv.Store().SaveAnalysis(&AnalysisRecord{
		ID:           "an-1",
		FirmID:       "client-a",
		AnalysisType: string(domain.AnalysisDeadlineRisk),
		Result:       string(result),
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("save analysis: %v", err)
	}

	var body struct {
		Analyses []domain.StrategicAnalysis `json:"analyses"`
	}
	url := ts.URL + "/api/clients/client-a/analysis?analysis_type=" + string(domain.AnalysisDeadlineRisk)
	if status := doJSON(t, http.MethodGet, url, nil, &body); status != http.StatusOK {
		t.Fatalf("analysis status = %d", status)
	}
	if len(body.Analyses) != 1 || body.Analyses[0].Result.Summary != "steady" {
		t.Fatalf("unexpected analyses: %+v", body.Analyses)
	}

	if status := doJSON(t, http.MethodGet, ts.URL+"/api/clients/client-a/analysis?analysis_type=bogus", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("bogus type status = %d, want 400", status)
	}
}

func seedClient(t *testing.T, srv *Server, id, name string) {
	t.Helper()
	err := srv.Store().CreateClient(&ClientRecord{
		ID: id, Name: name, Email: strings.ToLower(name) + "@example.com",
		Active: true, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed client %s: %v", id, err)
	}
}

func seedDocument(t *testing.T, srv *Server, clientID, id, filename, docType string) {
	t.Helper()
	err := srv.Store().CreateDocument(&DocumentRecord{
		ID: id, ClientID: clientID, Filename: filename, DocType: docType, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed document %s: %v", id, err)
	}
}

func seedDeadline(t *testing.T, srv *Server, clientID, id string, workingDays int) {
	t.Helper()
	err := srv.Store().CreateDeadline(&DeadlineRecord{
		ID: id, ClientID: clientID, Date: "2026-09-15",
		Description: "filing", WorkingDaysRemaining: workingDays, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed deadline %s: %v", id, err)
	}
}

func uploadFile(t *testing.T, ts *httptest.Server, clientID, filename string) string {
	t.Helper()
	id, status := uploadFileResult(t, ts, clientID, filename)
	if status != http.StatusOK {
		t.Fatalf("upload status = %d, want 200", status)
	}
	return id
}

func uploadFileStatus(t *testing.T, ts *httptest.Server, clientID, filename string) int {
	t.Helper()
	_, status := uploadFileResult(t, ts, clientID, filename)
	return status
}

func uploadFileResult(t *testing.T, ts *httptest.Server, clientID, filename string) (string, int) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("%PDF-1.4 test")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(ts.URL+"/api/clients/"+clientID+"/documents", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode
	}
	var body struct {
		DocumentID string `json:"document_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return body.DocumentID, resp.StatusCode
}
