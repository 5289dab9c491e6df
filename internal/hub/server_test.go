package hub

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	h := setupHub(t)

	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "connected", body.Store)

	t.Run("store down", func(t *testing.T) {
		h.mr.Close()

		resp, err := http.Get(h.server.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "disconnected", body.Store)
		assert.NotEmpty(t, body.Error)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupHub(t)
	h.addTarget(t, "https://example.com")
	v := dialValidator(t, h.wsURL("/ws"), nil)
	v.signup()
	h.waitRegistered(t, 1)
	h.dispatch(t)

	resp, err := http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "vigil_hub_assignments_dispatched_total 1")
	assert.Contains(t, string(body), "vigil_hub_validators_available 1")
	assert.Contains(t, string(body), `vigil_hub_signups_total{result="accepted"} 1`)
}

func TestValidatorsEndpoint(t *testing.T) {
	h := setupHub(t)
	v := dialValidator(t, h.wsURL("/ws"), nil)
	id := v.signup()
	h.waitRegistered(t, 1)

	resp, err := http.Get(h.server.URL + "/api/v1/validators")
	require.NoError(t, err)
	defer resp.Body.Close()

	var listed []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	require.Len(t, listed, 1)
	assert.Equal(t, id, listed[0]["validatorId"])
	assert.Equal(t, v.kp.PublicKey().String(), listed[0]["publicKey"])
}

func TestUnknownPathWithoutUpgrade(t *testing.T) {
	h := setupHub(t)

	resp, err := http.Get(h.server.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
