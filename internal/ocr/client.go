package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quizforge/backend/pkg/logger"
)

// Client calls the cloud OCR provider. A single request per document, no
// retry; failures surface to the caller.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Result is the extracted text plus the provider-side file identifier,
// stored on the document for later reference.
type Result struct {
	Text   string
	FileID string
}

func NewClient(endpoint, apiKey string, timeoutSec int) *Client {
	if timeoutSec <= 0 {
		timeoutSec = 60
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSec) * time.Second,
		},
	}
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type         string `json:"type"`
	DocumentName string `json:"document_name"`
	DocumentData string `json:"document_base64"`
}

type ocrResponse struct {
	ID    string `json:"id"`
	Pages []struct {
		Index    int    `json:"index"`
		Markdown string `json:"markdown"`
	} `json:"pages"`
}

// Extract runs remote OCR over the raw file bytes and returns the
// concatenated page text.
func (c *Client) Extract(ctx context.Context, fileName, mimeType string, data []byte) (*Result, error) {
	payload := ocrRequest{
		Model: "mistral-ocr-latest",
		Document: ocrDocument{
			Type:         "document_base64",
			DocumentName: fileName,
			DocumentData: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("ocr provider returned %d: %s", resp.StatusCode, string(msg))
	}

	var parsed ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode ocr response: %w", err)
	}

	var pages []string
	for _, page := range parsed.Pages {
		if text := strings.TrimSpace(page.Markdown); text != "" {
			pages = append(pages, text)
		}
	}

	logger.Info("OCR extraction completed",
		zap.String("file_name", fileName),
		zap.String("ocr_file_id", parsed.ID),
		zap.Int("pages", len(pages)),
	)

	return &Result{
		Text:   strings.Join(pages, "\n\n"),
		FileID: parsed.ID,
	}, nil
}
