package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["name"]})
	}))
	defer server.Close()

	c := NewClient(time.Second).WithHeader("X-API-Key", "secret")

	var out map[string]string
	err := c.PostJSON(context.Background(), server.URL, map[string]string{"name": "paystub.pdf"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "paystub.pdf", out["echo"])
}

func TestClient_PostJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "analysis backend down", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewClient(time.Second).PostJSON(context.Background(), server.URL, struct{}{}, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "analysis backend down")
}
