package travel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/slotwise-api/internal/models"
	appErrors "github.com/slotwise/slotwise-api/pkg/errors"
)

type matrixServer struct {
	*httptest.Server
	calls      int
	chunkSizes []int
	lastAuth   string
	lastMode   string
	minutes    func(id string) float64
	status     int
}

func newMatrixServer(t *testing.T) *matrixServer {
	t.Helper()
	ms := &matrixServer{minutes: func(string) float64 { return 10 }}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/matrix", r.URL.Path)
		ms.calls++
		ms.lastAuth = r.Header.Get("Authorization")

		var req struct {
			Destinations map[string]pointPayload `json:"destinations"`
			Mode         string                  `json:"mode"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ms.chunkSizes = append(ms.chunkSizes, len(req.Destinations))
		ms.lastMode = req.Mode

		if ms.status != 0 {
			w.WriteHeader(ms.status)
			return
		}
		durations := make(map[string]float64, len(req.Destinations))
		for id := range req.Destinations {
			durations[id] = ms.minutes(id)
		}
		_ = json.NewEncoder(w).Encode(matrixResponse{Durations: durations})
	}))
	t.Cleanup(ms.Server.Close)
	return ms
}

func TestClientEstimateBatch(t *testing.T) {
	srv := newMatrixServer(t)
	srv.minutes = func(id string) float64 {
		if id == "unreachable" {
			return 0
		}
		return 12.5
	}
	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "secret"}, nil)

	out, err := client.EstimateBatch(context.Background(), home, map[string]models.Coordinates{
		"a":           studio,
		"b":           {Lat: 51.9244, Lng: 4.4777},
		"unreachable": {Lat: 0, Lng: 0},
	}, models.TransportModeTransit)

	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 12*time.Minute+30*time.Second, out["a"])
	assert.NotContains(t, out, "unreachable")
	assert.Equal(t, "Bearer secret", srv.lastAuth)
	assert.Equal(t, "transit", srv.lastMode)
}

func TestClientSplitsAboveBatchLimit(t *testing.T) {
	srv := newMatrixServer(t)
	client := NewClient(ClientConfig{BaseURL: srv.URL}, nil)

	dests := make(map[string]models.Coordinates, 30)
	for i := 0; i < 30; i++ {
		dests[string(rune('a'+i))] = studio
	}

	out, err := client.EstimateBatch(context.Background(), home, dests, models.TransportModeDriving)
	require.NoError(t, err)
	assert.Len(t, out, 30)
	assert.Equal(t, 2, srv.calls)
	for _, size := range srv.chunkSizes {
		assert.LessOrEqual(t, size, BatchLimit)
	}
}

func TestClientServerErrorIsDegraded(t *testing.T) {
	srv := newMatrixServer(t)
	srv.status = http.StatusInternalServerError
	client := NewClient(ClientConfig{BaseURL: srv.URL}, nil)

	_, err := client.EstimateBatch(context.Background(), home,
		map[string]models.Coordinates{"a": studio}, models.TransportModeDriving)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExternalDegraded.Code, appErrors.FromError(err).Code)
}

func TestClientUnreachableIsDegraded(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, nil)

	_, err := client.Estimate(context.Background(), home, studio, models.TransportModeDriving)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExternalDegraded.Code, appErrors.FromError(err).Code)
}

func TestClientEstimateSingle(t *testing.T) {
	srv := newMatrixServer(t)
	client := NewClient(ClientConfig{BaseURL: srv.URL}, nil)

	d, err := client.Estimate(context.Background(), home, studio, models.TransportModeWalking)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, d)

	// The service answering without the pair is still a degraded condition.
	srv.minutes = func(string) float64 { return 0 }
	_, err = client.Estimate(context.Background(), home, studio, models.TransportModeWalking)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExternalDegraded.Code, appErrors.FromError(err).Code)
}
