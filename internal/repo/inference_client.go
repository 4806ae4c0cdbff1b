package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/cycle-engine/internal/engine"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

// InferenceClient delegates adaptive scoring to an HTTP inference service.
type InferenceClient struct {
	baseURL     string
	predictPath string
	httpClient  *http.Client
}

// NewInferenceClient constructs a client targeting the configured inference service.
func NewInferenceClient(baseURL, predictPath string, timeout time.Duration) *InferenceClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if predictPath == "" {
		predictPath = "/v1/predict"
	}
	return &InferenceClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		predictPath: predictPath,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type inferenceCycle struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

type inferenceSymptom struct {
	Date     string `json:"date"`
	Category string `json:"category"`
	Severity int    `json:"severity"`
}

type inferenceRequest struct {
	AsOf     string             `json:"as_of"`
	Cycles   []inferenceCycle   `json:"cycles"`
	Symptoms []inferenceSymptom `json:"symptoms"`
	Profile  models.Profile     `json:"profile"`
}

type inferenceResponse struct {
	NextPeriodStart string   `json:"next_period_start"`
	Confidence      *float64 `json:"confidence"`
}

// Score implements engine.Scorer.
func (c *InferenceClient) Score(ctx context.Context, in engine.ScoreInput) (engine.Candidate, error) {
	if c == nil {
		return engine.Candidate{}, fmt.Errorf("inference client not initialised")
	}
	if c.baseURL == "" {
		return engine.Candidate{}, fmt.Errorf("inference base URL not configured")
	}

	payload := inferenceRequest{
		AsOf:     utils.FormatDate(in.AsOf),
		Cycles:   make([]inferenceCycle, 0, len(in.History.Cycles)),
		Symptoms: make([]inferenceSymptom, 0, len(in.History.Symptoms)),
		Profile:  in.Profile,
	}
	for _, record := range in.History.Cycles {
		cycle := inferenceCycle{Start: utils.FormatDate(record.Start)}
		if record.End != nil {
			cycle.End = utils.FormatDate(*record.End)
		}
		payload.Cycles = append(payload.Cycles, cycle)
	}
	for _, entry := range in.History.Symptoms {
		payload.Symptoms = append(payload.Symptoms, inferenceSymptom{
			Date:     utils.FormatDate(entry.Date),
			Category: string(entry.Category),
			Severity: entry.Severity,
		})
	}

	var response inferenceResponse
	if err := c.postJSON(ctx, c.predictURL(), payload, &response); err != nil {
		return engine.Candidate{}, fmt.Errorf("inference request failed: %w", err)
	}
	if response.Confidence == nil {
		return engine.Candidate{}, fmt.Errorf("inference response missing confidence")
	}
	next, err := parseStoredDate(response.NextPeriodStart)
	if err != nil {
		return engine.Candidate{}, fmt.Errorf("inference response next_period_start: %w", err)
	}
	return engine.Candidate{NextPeriodStart: next, Confidence: *response.Confidence}, nil
}

func (c *InferenceClient) predictURL() string {
	cleaned := "/" + strings.TrimLeft(c.predictPath, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *InferenceClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference service returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
