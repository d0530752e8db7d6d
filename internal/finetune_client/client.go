package finetune_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"finetuner/internal/formatter"
	"finetuner/internal/models"
)

// Provider job statuses as reported by the fine-tuning service. Statuses
// outside this set may appear in newer service versions and are tolerated by
// the orchestrator.
const (
	ProviderStatusQueued    = "queued"
	ProviderStatusRunning   = "running"
	ProviderStatusSucceeded = "succeeded"
	ProviderStatusFailed    = "failed"
	ProviderStatusCancelled = "cancelled"
)

// Client is a client for the fine-tuning provider API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new fine-tuning provider client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// fileRecord is one training example as serialized into the uploaded
// training file. It carries the formatter's rendering so the payload matches
// what validation judged.
type fileRecord struct {
	Messages []formatter.Message `json:"messages"`
}

// ChatMessage is a role/content pair in provider wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UploadRequest carries a named training file of example records.
type UploadRequest struct {
	Filename string       `json:"filename"`
	Purpose  string       `json:"purpose"`
	Records  []fileRecord `json:"records"`
}

// UploadResponse identifies the stored training file.
type UploadResponse struct {
	FileID string `json:"file_id"`
}

// CreateJobRequest starts a fine-tune run against an uploaded file.
type CreateJobRequest struct {
	TrainingFile    string          `json:"training_file"`
	BaseModel       string          `json:"base_model"`
	Hyperparameters json.RawMessage `json:"hyperparameters,omitempty"`
}

// JobResponse reports provider-side job state.
type JobResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	FineTunedModel string `json:"fine_tuned_model,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CompletionRequest invokes a model with a message sequence.
type CompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// CompletionResponse carries the model output.
type CompletionResponse struct {
	Content string `json:"content"`
}

// UploadTrainingFile uploads validated examples as a named training file and
// returns the provider file id.
func (c *Client) UploadTrainingFile(ctx context.Context, filename string, examples []models.TrainingExample) (string, error) {
	records := make([]fileRecord, 0, len(examples))
	for _, ex := range examples {
		records = append(records, fileRecord{Messages: formatter.RenderMessages(ex)})
	}

	var resp UploadResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/files", UploadRequest{
		Filename: filename,
		Purpose:  "fine-tune",
		Records:  records,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.FileID, nil
}

// CreateJob submits a fine-tune run and returns the provider job handle.
func (c *Client) CreateJob(ctx context.Context, fileID, baseModel string, hyperparameters json.RawMessage) (*JobResponse, error) {
	var resp JobResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/fine-tunes", CreateJobRequest{
		TrainingFile:    fileID,
		BaseModel:       baseModel,
		Hyperparameters: hyperparameters,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJobStatus queries progress for a provider job handle.
func (c *Client) GetJobStatus(ctx context.Context, providerJobID string) (*JobResponse, error) {
	var resp JobResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/fine-tunes/"+providerJobID, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete invokes the given model with a message sequence and returns its
// completion. Used by the evaluator against fine-tuned models.
func (c *Client) Complete(ctx context.Context, modelID string, messages []ChatMessage) (string, error) {
	var resp CompletionResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/completions", CompletionRequest{
		Model:    modelID,
		Messages: messages,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody interface{}) error {
	var body io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respData, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("fine-tuning provider returned status %d: %s", resp.StatusCode, string(respData))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
