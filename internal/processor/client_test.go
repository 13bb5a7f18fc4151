package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docgate/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(config.ProcessorConfig{BaseURL: srv.URL + "/", APIKey: "k-123", Timeout: 5 * time.Second})
}

// TestSubmit_SendsMultipart verifies the request shape and the task_id
// fallback when job_id is absent.
func TestSubmit_SendsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs/process-document" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-API-Key"); got != "k-123" {
			t.Errorf("X-API-Key = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if got := r.FormValue("original_filename"); got != "thesis.docx" {
			t.Errorf("original_filename = %q", got)
		}
		if got := r.FormValue("turnitin_filename"); got != "report.pdf" {
			t.Errorf("turnitin_filename = %q", got)
		}
		f, _, err := r.FormFile("original_doc")
		if err != nil {
			t.Errorf("original_doc: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if string(data) != "docx-bytes" {
			t.Errorf("original_doc = %q", data)
		}
		if _, _, err := r.FormFile("turnitin_pdf"); err != nil {
			t.Errorf("turnitin_pdf: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "t-9", "status_url": "/jobs/t-9/status"})
	})

	job, err := client.Submit(context.Background(), Submission{
		Document:     []byte("docx-bytes"),
		DocumentName: "thesis.docx",
		TurnitinPDF:  []byte("%PDF-"),
		TurnitinName: "report.pdf",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID != "t-9" || job.StatusURL != "/jobs/t-9/status" {
		t.Fatalf("job = %+v", job)
	}
}

func TestSubmit_WithoutPDF(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if _, _, err := r.FormFile("turnitin_pdf"); err == nil {
			t.Error("turnitin_pdf sent without a pdf")
		}
		_, _ = w.Write([]byte(`{"job_id":"j-1"}`))
	})

	job, err := client.Submit(context.Background(), Submission{Document: []byte("d"), DocumentName: "a.docx"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID != "j-1" {
		t.Fatalf("job id = %q, want j-1", job.ID)
	}
}

func TestSubmit_NoJobID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	if _, err := client.Submit(context.Background(), Submission{Document: []byte("d")}); !errors.Is(err, ErrNoJobID) {
		t.Fatalf("err = %v, want ErrNoJobID", err)
	}
}

func TestStatus_Completed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs/j-1/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"completed","progress":100,"result":{"flag_count":4,"flag_types":[{"name":"quote","count":4}],"similarity_score":12.5,"flags_removed":3,"output_file_size":2048}}`))
	})

	status, err := client.Status(context.Background(), "j-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != StatusCompleted || status.Result == nil {
		t.Fatalf("status = %+v", status)
	}
	r := status.Result
	if r.FlagCount != 4 || r.FlagsRemoved != 3 || r.OutputFileSize != 2048 {
		t.Fatalf("result = %+v", r)
	}
	if r.SimilarityScore == nil || *r.SimilarityScore != 12.5 {
		t.Fatalf("similarity = %v", r.SimilarityScore)
	}
	if len(r.FlagTypes) != 1 || r.FlagTypes[0].Name != "quote" {
		t.Fatalf("flag types = %+v", r.FlagTypes)
	}
}

func TestStatus_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such job", http.StatusNotFound)
	})

	_, err := client.Status(context.Background(), "gone")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound || se.Body != "no such job" {
		t.Fatalf("status error = %+v", se)
	}
}
