package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docsier/docsier-go/internal/domain"
	"github.com/docsier/docsier-go/internal/observability"
)

var (
	// ErrMissingDocumentID marks an upload response that omitted the
	// mandatory canonical document identifier. The client never synthesizes
	// one: a guessed id would silently misdirect later validation lookups
	// and deletions.
	ErrMissingDocumentID = errors.New("upload response missing document_id")

	// ErrValidationUnavailable means no validation exists for a document, a
	// state distinct from any validation status.
	ErrValidationUnavailable = errors.New("validation unavailable")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d for %s", e.StatusCode, e.Path)
}

// CredentialSource supplies the bearer credential for outbound requests.
type CredentialSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is the typed HTTP client for the Docsier backend.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
}

func New(baseURL string, timeout time.Duration, creds CredentialSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		creds: creds,
	}
}

func (c *Client) Clients(ctx context.Context) ([]domain.Client, error) {
	var out []domain.Client
	if err := c.do(ctx, "clients.list", http.MethodGet, "/api/clients", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateClient(ctx context.Context, nc domain.NewClient) (*domain.Client, error) {
	var out domain.Client
	if err := c.do(ctx, "clients.create", http.MethodPost, "/api/clients", nil, nc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// documentPayload tolerates both historical identifier spellings on list
// responses; DocumentID wins when both are present.
type documentPayload struct {
	ID             string                        `json:"id"`
	DocumentID     string                        `json:"document_id"`
	Filename       string                        `json:"filename"`
	Classification domain.DocumentClassification `json:"classification"`
	CreatedAt      time.Time                     `json:"created_at"`
}

func (c *Client) Documents(ctx context.Context, clientID string) ([]domain.ClassifiedDocument, error) {
	var out struct {
		Documents []documentPayload `json:"documents"`
	}
	path := "/api/clients/" + url.PathEscape(clientID) + "/documents"
	if err := c.do(ctx, "documents.list", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	docs := make([]domain.ClassifiedDocument, 0, len(out.Documents))
	for _, p := range out.Documents {
		id := p.DocumentID
		if id == "" {
			id = p.ID
		}
		doc := domain.ClassifiedDocument{
			DocumentID:     id,
			Filename:       p.Filename,
			Classification: p.Classification,
			CreatedAt:      p.CreatedAt,
		}
		doc.Classification.DocType = domain.NormalizeDocumentType(doc.Classification.DocType)
		docs = append(docs, doc)
	}
	return docs, nil
}

type UploadResult struct {
	Success            bool                           `json:"success"`
	DocumentID         string                         `json:"document_id"`
	Filename           string                         `json:"filename"`
	Classification     *domain.DocumentClassification `json:"classification,omitempty"`
	DeadlinesExtracted int                            `json:"deadlines_extracted,omitempty"`
	Deadlines          []domain.Deadline              `json:"deadlines,omitempty"`
}

// UploadDocument submits a file for asynchronous classification. The
// response must carry the canonical document_id; its absence is a backend
// contract violation and a hard error even when success is true.
func (c *Client) UploadDocument(ctx context.Context, clientID, filename string, contents io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, contents); err != nil {
		return nil, fmt.Errorf("read upload contents: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	path := "/api/clients/" + url.PathEscape(clientID) + "/documents"
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out UploadResult
	if err := c.send("documents.upload", req, &out); err != nil {
		return nil, err
	}
	if out.DocumentID == "" {
		observability.RecordAPIRequest("documents.upload", "contract_violation")
		return nil, ErrMissingDocumentID
	}
	return &out, nil
}

func (c *Client) DeleteDocument(ctx context.Context, clientID, documentID string) error {
	path := "/api/clients/" + url.PathEscape(clientID) + "/documents/" + url.PathEscape(documentID)
	return c.do(ctx, "documents.delete", http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) DocumentStats(ctx context.Context, clientID string) (*domain.DocumentStats, error) {
	var out domain.DocumentStats
	path := "/api/clients/" + url.PathEscape(clientID) + "/documents/stats"
	if err := c.do(ctx, "documents.stats", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Deadlines(ctx context.Context, clientID string, completed bool) ([]domain.Deadline, error) {
	var out struct {
		Deadlines []domain.Deadline `json:"deadlines"`
	}
	path := "/api/clients/" + url.PathEscape(clientID) + "/deadlines"
	query := url.Values{"completed": {strconv.FormatBool(completed)}}
	if err := c.do(ctx, "deadlines.list", http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Deadlines, nil
}

func (c *Client) DeadlineStats(ctx context.Context, clientID string) (*domain.DeadlineStats, error) {
	var out domain.DeadlineStats
	path := "/api/clients/" + url.PathEscape(clientID) + "/deadlines/stats"
	if err := c.do(ctx, "deadlines.stats", http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CompleteDeadline(ctx context.Context, clientID, deadlineID string) error {
	path := "/api/clients/" + url.PathEscape(clientID) + "/deadlines/" + url.PathEscape(deadlineID) + "/complete"
	return c.do(ctx, "deadlines.complete", http.MethodPatch, path, nil, nil, nil)
}

func (c *Client) UncompleteDeadline(ctx context.Context, clientID, deadlineID string) error {
	path := "/api/clients/" + url.PathEscape(clientID) + "/deadlines/" + url.PathEscape(deadlineID) + "/uncomplete"
	return c.do(ctx, "deadlines.uncomplete", http.MethodPatch, path, nil, nil, nil)
}

func (c *Client) UrgentDeadlines(ctx context.Context, limit int) ([]domain.Deadline, error) {
	var out struct {
		Deadlines []domain.Deadline `json:"deadlines"`
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, "deadlines.urgent", http.MethodGet, "/api/urgent-deadlines", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Deadlines, nil
}

func (c *Client) Analyses(ctx context.Context, clientID string, analysisType domain.AnalysisType) ([]domain.StrategicAnalysis, error) {
	var out struct {
		Analyses []domain.StrategicAnalysis `json:"analyses"`
	}
	path := "/api/clients/" + url.PathEscape(clientID) + "/analysis"
	query := url.Values{"analysis_type": {string(analysisType)}}
	if err := c.do(ctx, "analysis.list", http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out.Analyses, nil
}

// Validation fetches the validation attached to one document's
// classification. A 404 maps to ErrValidationUnavailable.
func (c *Client) Validation(ctx context.Context, documentID string) (*domain.ValidationResult, error) {
	var out struct {
		Validation *domain.ValidationResult `json:"validation"`
	}
	path := "/api/validations/classification/" + url.PathEscape(documentID)
	err := c.do(ctx, "validations.get", http.MethodGet, path, nil, nil, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, ErrValidationUnavailable
		}
		return nil, err
	}
	if out.Validation == nil {
		return nil, ErrValidationUnavailable
	}
	out.Validation.ValidationStatus = domain.NormalizeValidationStatus(out.Validation.ValidationStatus)
	return out.Validation, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(operation, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.creds != nil {
		token, err := c.creds.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve credential: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(operation string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordAPIRequest(operation, "transport_error")
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		observability.RecordAPIRequest(operation, strconv.Itoa(resp.StatusCode))
		return &StatusError{StatusCode: resp.StatusCode, Path: req.URL.Path}
	}
	observability.RecordAPIRequest(operation, "ok")
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}
