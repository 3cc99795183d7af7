package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newClientAgainst(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second, nil)
}

func TestDocumentsNormalizesIdentifier(t *testing.T) {
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/clients/client-1/documents" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"documents":[
			{"document_id":"doc-1","filename":"a.pdf","classification":{"doc_type":"contract","confidence":0.9}},
			{"id":"row-7","filename":"b.pdf","classification":{"doc_type":"spreadsheet","confidence":0.4}}
		]}`)
	}))

	docs, err := c.Documents(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].DocumentID != "doc-1" {
		t.Fatalf("document_id must win, got %q", docs[0].DocumentID)
	}
	if docs[1].DocumentID != "row-7" {
		t.Fatalf("legacy id must be carried when document_id is absent, got %q", docs[1].DocumentID)
	}
	if docs[1].Classification.DocType != "other" {
		t.Fatalf("unknown doc_type must normalize to other, got %q", docs[1].Classification.DocType)
	}
}

func TestUploadDocumentSendsMultipartFileField(t *testing.T) {
	var gotField, gotFilename, gotContents string
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for field, headers := range r.MultipartForm.File {
			gotField = field
			gotFilename = headers[0].Filename
			f, _ := headers[0].Open()
			raw, _ := io.ReadAll(f)
			_ = f.Close()
			gotContents = string(raw)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "document_id": "doc-9", "filename": gotFilename})
	}))

	res, err := c.UploadDocument(context.Background(), "client-1", "x.pdf", strings.NewReader("pdf-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotField != "file" || gotFilename != "x.pdf" || gotContents != "pdf-bytes" {
		t.Fatalf("unexpected multipart payload field=%q filename=%q contents=%q", gotField, gotFilename, gotContents)
	}
	if res.DocumentID != "doc-9" {
		t.Fatalf("unexpected document id %q", res.DocumentID)
	}
}

func TestUploadDocumentRejectsMissingDocumentID(t *testing.T) {
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "filename": "x.pdf"})
	}))

	_, err := c.UploadDocument(context.Background(), "client-1", "x.pdf", strings.NewReader("pdf"))
	if !errors.Is(err, ErrMissingDocumentID) {
		t.Fatalf("expected ErrMissingDocumentID, got %v", err)
	}
}

func TestValidationNotFoundIsUnavailable(t *testing.T) {
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := c.Validation(context.Background(), "doc-1")
	if !errors.Is(err, ErrValidationUnavailable) {
		t.Fatalf("expected ErrValidationUnavailable, got %v", err)
	}
}

func TestValidationNormalizesStatus(t *testing.T) {
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"validation":{"validation_status":"somewhat_ok","confidence_score":0.7,"feedback":"check dates"}}`)
	}))

	v, err := c.Validation(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("fetch validation: %v", err)
	}
	if v.ValidationStatus != "warning" {
		t.Fatalf("unrecognized status must normalize to warning, got %q", v.ValidationStatus)
	}
}

func TestDeadlinesPassesCompletedFlag(t *testing.T) {
	var gotCompleted []string
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCompleted = append(gotCompleted, r.URL.Query().Get("completed"))
		_, _ = io.WriteString(w, `{"deadlines":[]}`)
	}))

	if _, err := c.Deadlines(context.Background(), "client-1", false); err != nil {
		t.Fatalf("list active deadlines: %v", err)
	}
	if _, err := c.Deadlines(context.Background(), "client-1", true); err != nil {
		t.Fatalf("list completed deadlines: %v", err)
	}
	if len(gotCompleted) != 2 || gotCompleted[0] != "false" || gotCompleted[1] != "true" {
		t.Fatalf("unexpected completed flags %v", gotCompleted)
	}
}

func TestStatusErrorCarriesCode(t *testing.T) {
	c := newClientAgainst(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	_, err := c.Clients(context.Background())
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 StatusError, got %v", err)
	}
}

func TestCredentialSourceInjectsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, 5*time.Second, staticCreds("tok-1"))
	if _, err := c.Clients(context.Background()); err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
}

type staticCreds string

func (s staticCreds) AccessToken(context.Context) (string, error) { return string(s), nil }
