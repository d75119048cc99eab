package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/mizuha/annoset/internal/errs"
)

// FineTuneJob is the subset of the fine-tuning job object the service
// reports to callers.
type FineTuneJob struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Model          string `json:"model"`
	FineTunedModel string `json:"fine_tuned_model"`
}

type fineTuneJobResponse struct {
	FineTuneJob
	Error *apiError `json:"error"`
}

type fileUploadResponse struct {
	ID    string    `json:"id"`
	Error *apiError `json:"error"`
}

// UploadTrainingFile uploads a JSONL dataset with purpose=fine-tune and
// returns the provider's file id.
func (c *Client) UploadTrainingFile(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("purpose", "fine-tune"); err != nil {
		return "", fmt.Errorf("failed to write purpose field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to copy dataset: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp fileUploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", errs.New(errs.Upstream, "file upload error: %s", resp.Error.Message)
	}
	if resp.ID == "" {
		return "", errs.New(errs.Upstream, "file upload returned no id")
	}
	return resp.ID, nil
}

// CreateFineTuneJob starts a fine-tuning job for an uploaded training file.
func (c *Client) CreateFineTuneJob(ctx context.Context, trainingFileID, model string) (*FineTuneJob, error) {
	reqBody := struct {
		TrainingFile string `json:"training_file"`
		Model        string `json:"model"`
	}{
		TrainingFile: trainingFileID,
		Model:        model,
	}

	var resp fineTuneJobResponse
	if err := c.postJSON(ctx, "/fine_tuning/jobs", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errs.New(errs.Upstream, "fine-tune job error: %s", resp.Error.Message)
	}
	job := resp.FineTuneJob
	return &job, nil
}

// GetFineTuneJob fetches the current status of a fine-tuning job.
func (c *Client) GetFineTuneJob(ctx context.Context, jobID string) (*FineTuneJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fine_tuning/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp fineTuneJobResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, errs.New(errs.Upstream, "fine-tune job lookup error: %s", resp.Error.Message)
	}
	job := resp.FineTuneJob
	return &job, nil
}
