package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

// BatchLimit is the maximum number of destinations the directions service
// accepts per matrix call. Larger requests are split.
const BatchLimit = 25

// ClientConfig configures the directions service client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the external directions service. Calls are idempotent and
// cacheable by (rounded coordinate pair, mode).
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a directions client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type matrixRequest struct {
	Origin       pointPayload            `json:"origin"`
	Destinations map[string]pointPayload `json:"destinations"`
	Mode         string                  `json:"mode"`
}

type pointPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type matrixResponse struct {
	Durations map[string]float64 `json:"durations"` // minutes per destination key
}

// Estimate returns the travel time between two coordinates.
func (c *Client) Estimate(ctx context.Context, origin, dest models.Coordinates, mode models.TransportMode) (time.Duration, error) {
	result, err := c.EstimateBatch(ctx, origin, map[string]models.Coordinates{"dest": dest}, mode)
	if err != nil {
		return 0, err
	}
	d, ok := result["dest"]
	if !ok {
		return 0, appErrors.Clone(appErrors.ErrExternalDegraded, "directions service returned no estimate for pair")
	}
	return d, nil
}

// EstimateBatch estimates travel from one origin to many destinations,
// splitting requests above the service's batch limit. Destinations the service
// could not resolve are absent from the returned map; only a transport-level
// failure returns an error.
func (c *Client) EstimateBatch(ctx context.Context, origin models.Coordinates, dests map[string]models.Coordinates, mode models.TransportMode) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration, len(dests))
	chunk := make(map[string]models.Coordinates, BatchLimit)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		partial, err := c.matrix(ctx, origin, chunk, mode)
		if err != nil {
			return err
		}
		for id, d := range partial {
			out[id] = d
		}
		chunk = make(map[string]models.Coordinates, BatchLimit)
		return nil
	}

	for id, dest := range dests {
		chunk[id] = dest
		if len(chunk) == BatchLimit {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) matrix(ctx context.Context, origin models.Coordinates, dests map[string]models.Coordinates, mode models.TransportMode) (map[string]time.Duration, error) {
	payload := matrixRequest{
		Origin:       pointPayload{Lat: origin.Lat, Lng: origin.Lng},
		Destinations: make(map[string]pointPayload, len(dests)),
		Mode:         string(mode),
	}
	for id, dest := range dests {
		payload.Destinations[id] = pointPayload{Lat: dest.Lat, Lng: dest.Lng}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode matrix request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/matrix", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build matrix request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalDegraded.Code, appErrors.ErrExternalDegraded.Status, "directions service unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.Clone(appErrors.ErrExternalDegraded, fmt.Sprintf("directions service returned status %d", resp.StatusCode))
	}

	var decoded matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrExternalDegraded.Code, appErrors.ErrExternalDegraded.Status, "decode directions response")
	}

	out := make(map[string]time.Duration, len(decoded.Durations))
	for id, minutes := range decoded.Durations {
		if minutes <= 0 {
			c.logger.Debug("directions service returned non-positive duration", zap.String("destination", id))
			continue
		}
		out[id] = time.Duration(minutes * float64(time.Minute))
	}
	return out, nil
}
