package converter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteHealthCheck(t *testing.T) {
	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL)
	require.NoError(t, remote.HealthCheck(context.Background()))

	healthy = false
	err := remote.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 503")
}

func TestRemoteHealthCheckUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	remote := NewRemote(srv.URL)
	require.Error(t, remote.HealthCheck(context.Background()))
}

func TestRemoteConvertPostsPaths(t *testing.T) {
	var got struct {
		SourcePath string `json:"source_path"`
		TargetPath string `json:"target_path"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/convert", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL)
	err := remote.Convert(context.Background(), "shelf/book.epub", "shelf/book.pdf")
	require.NoError(t, err)
	assert.Equal(t, "shelf/book.epub", got.SourcePath)
	assert.Equal(t, "shelf/book.pdf", got.TargetPath)
}

func TestRemoteConvertSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "Conversion failed",
			"details": "DRM-protected input",
		})
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL)
	err := remote.Convert(context.Background(), "a.epub", "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Conversion failed")
	assert.Contains(t, err.Error(), "DRM-protected input")
}

func TestRemoteConvertNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	remote := NewRemote(srv.URL)
	err := remote.Convert(context.Background(), "a.epub", "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 502")
}
