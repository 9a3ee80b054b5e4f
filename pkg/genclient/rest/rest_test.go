package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dravya-labs/dravya/pkg/genclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent(t *testing.T) {
	var got generateContentRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "k-123", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Part A"},{"text":"Part B"}]}}]}`))
	}))
	defer upstream.Close()

	c, err := New(Options{APIKey: "k-123", BaseURL: upstream.URL})
	require.NoError(t, err)

	resp, err := c.GenerateContent(context.Background(), "models/gemini-test", "describe Tulsi", genclient.ContentOptions{
		ResponseModalities: []string{genclient.ModalityImage},
	})
	require.NoError(t, err)

	m, ok := resp.(map[string]any)
	require.True(t, ok)
	assert.Len(t, m["candidates"], 1)
	assert.Equal(t, "describe Tulsi", got.Contents[0].Parts[0].Text)
	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, []string{"IMAGE"}, got.GenerationConfig.ResponseModalities)
}

func TestPredictMethod(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/imagen:predict", r.URL.Path)
		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a leaf", req.Instances[0]["prompt"])
		w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"iVBORw==","mimeType":"image/png"}]}`))
	}))
	defer upstream.Close()

	c, err := New(Options{APIKey: "k", BaseURL: upstream.URL + "/"})
	require.NoError(t, err)

	_, ok := c.Method("generate_images")
	assert.False(t, ok)

	predict, ok := c.Method(MethodPredict)
	require.True(t, ok)
	resp, err := predict(context.Background(), "imagen", "a leaf")
	require.NoError(t, err)
	assert.Contains(t, resp.(map[string]any), "predictions")
}

func TestNon2xxIsError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer upstream.Close()

	c, err := New(Options{APIKey: "k", BaseURL: upstream.URL})
	require.NoError(t, err)

	_, err = c.GenerateContent(context.Background(), "m", "p", genclient.ContentOptions{})
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusTooManyRequests, serr.Code)
	assert.Contains(t, serr.Error(), "quota")
}

func TestOversizedResponseIsError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + strings.Repeat("x", 256) + `"}]}}]}`))
	}))
	defer upstream.Close()

	c, err := New(Options{APIKey: "k", BaseURL: upstream.URL, MaxResponseBytes: 64})
	require.NoError(t, err)

	_, err = c.GenerateContent(context.Background(), "m", "p", genclient.ContentOptions{})
	require.ErrorIs(t, err, ErrResponseTooLarge)

	c, err = New(Options{APIKey: "k", BaseURL: upstream.URL})
	require.NoError(t, err)
	_, err = c.GenerateContent(context.Background(), "m", "p", genclient.ContentOptions{})
	assert.NoError(t, err)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
