// Package processor talks to the external document processing service.
package processor

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
	"strings"
	"time"

	"docgate/internal/config"
	"docgate/internal/models"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var ErrNoJobID = errors.New("processor response carries no job id")

// Submission is one document sent for processing. TurnitinPDF is optional.
type Submission struct {
	Document     []byte
	DocumentName string
	TurnitinPDF  []byte
	TurnitinName string
}

type Job struct {
	ID        string
	StatusURL string
}

type Result struct {
	FlagCount       int               `json:"flag_count"`
	FlagTypes       []models.FlagType `json:"flag_types"`
	SimilarityScore *float64          `json:"similarity_score"`
	FlagsRemoved    int               `json:"flags_removed"`
	ProcessingTime  float64           `json:"processing_time"`
	SuccessRate     float64           `json:"success_rate"`
	OutputPath      string            `json:"output_path"`
	OutputFilename  string            `json:"output_filename"`
	OutputFileSize  int64             `json:"output_file_size"`
}

type JobStatus struct {
	Status   string  `json:"status"`
	Progress int     `json:"progress"`
	Error    string  `json:"error"`
	Result   *Result `json:"result"`
}

// StatusError is a non-2xx answer from the processor.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("processor returned %d: %s", e.Code, e.Body)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.ProcessorConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Submit(ctx context.Context, sub Submission) (Job, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	if err := writeFile(w, "original_doc", sub.DocumentName, sub.Document); err != nil {
		return Job{}, err
	}
	if err := w.WriteField("original_filename", sub.DocumentName); err != nil {
		return Job{}, err
	}
	if len(sub.TurnitinPDF) > 0 {
		if err := writeFile(w, "turnitin_pdf", sub.TurnitinName, sub.TurnitinPDF); err != nil {
			return Job{}, err
		}
		if err := w.WriteField("turnitin_filename", sub.TurnitinName); err != nil {
			return Job{}, err
		}
	}
	if err := w.Close(); err != nil {
		return Job{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs/process-document", &body)
	if err != nil {
		return Job{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		JobID     string `json:"job_id"`
		TaskID    string `json:"task_id"`
		StatusURL string `json:"status_url"`
	}
	if err := c.do(req, &resp); err != nil {
		return Job{}, err
	}

	id := resp.JobID
	if id == "" {
		id = resp.TaskID
	}
	if id == "" {
		return Job{}, ErrNoJobID
	}
	return Job{ID: id, StatusURL: resp.StatusURL}, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	endpoint := c.baseURL + "/jobs/" + url.PathEscape(jobID) + "/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return JobStatus{}, err
	}

	var status JobStatus
	if err := c.do(req, &status); err != nil {
		return JobStatus{}, err
	}
	return status, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func writeFile(w *multipart.Writer, field, name string, data []byte) error {
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}
