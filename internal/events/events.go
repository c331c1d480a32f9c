// Package events publishes pipeline lifecycle outcomes to the external
// aggregator. Delivery is fire-and-forget: failures are logged at
// warning level and never propagate back into the pipeline. When no
// aggregator URL is configured, a noop publisher is returned.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"courier/internal/config"
	"courier/internal/ledger"
	"courier/internal/logging"
)

// Outcome kinds accepted by the aggregator.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Outcome is one delivery result.
type Outcome struct {
	Type           string  `json:"type"`
	File           string  `json:"file"`
	FileID         int64   `json:"file_id"`
	Hash           string  `json:"hash"`
	FileSize       int64   `json:"file_size"`
	ProcessingTime float64 `json:"processing_time"`
	UploadSpeed    float64 `json:"upload_speed"`
}

// Publisher is the aggregator surface exposed to the scheduler.
type Publisher interface {
	PublishOutcome(ctx context.Context, outcome Outcome)
	PublishHistory(ctx context.Context, snapshot map[string]ledger.FileRecord)
}

// NewPublisher builds an aggregator publisher from the configuration.
func NewPublisher(cfg config.Aggregator, logger *slog.Logger) Publisher {
	url := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if url == "" {
		return noopPublisher{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpPublisher{
		baseURL: url,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type httpPublisher struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func (p *httpPublisher) PublishOutcome(ctx context.Context, outcome Outcome) {
	p.post(ctx, "/event", outcome)
}

func (p *httpPublisher) PublishHistory(ctx context.Context, snapshot map[string]ledger.FileRecord) {
	p.post(ctx, "/file_history", snapshot)
}

func (p *httpPublisher) post(ctx context.Context, path string, body any) {
	encoded, err := json.Marshal(body)
	if err != nil {
		p.logger.Warn("failed to encode aggregator payload",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		p.logger.Warn("failed to build aggregator request",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("aggregator unreachable",
			logging.String("path", path),
			logging.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= http.StatusMultipleChoices {
		p.logger.Warn("aggregator rejected payload",
			logging.String("path", path),
			logging.Int("status", resp.StatusCode))
	}
}

type noopPublisher struct{}

func (noopPublisher) PublishOutcome(context.Context, Outcome)                   {}
func (noopPublisher) PublishHistory(context.Context, map[string]ledger.FileRecord) {}
