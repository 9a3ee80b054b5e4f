package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dravya-labs/dravya/pkg/cache/memory"
	"github.com/dravya-labs/dravya/pkg/config"
	"github.com/dravya-labs/dravya/pkg/dataset"
	"github.com/dravya-labs/dravya/pkg/enrich"
	"github.com/dravya-labs/dravya/pkg/genclient/fake"
	"github.com/dravya-labs/dravya/pkg/identify"
	"github.com/dravya-labs/dravya/pkg/models"
	"github.com/dravya-labs/dravya/pkg/normalize"
	"github.com/dravya-labs/dravya/pkg/predictor"
	"github.com/dravya-labs/dravya/pkg/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	testImage  = bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 40)
	vocabulary = []string{"Amla", "Ashwagandha", "Brahmi", "Haldi", "Neem", "Tulsi"}
)

type fixedPredictor struct {
	label string
	err   error
}

func (p fixedPredictor) Predict(models.SensorReading) (string, error) {
	return p.label, p.err
}

type pipeline struct {
	srv    *Server
	client *fake.Client
	cache  *memory.Store
}

// newPipeline wires the full stack. A nil client means no API key; images
// enables the image strategy cascade.
func newPipeline(t *testing.T, p identify.Predictor, client *fake.Client, images bool) *pipeline {
	t.Helper()
	cfg := config.Default()
	n := normalize.New(zap.NewNop(), cfg.Generation.Image.MIMEType)
	store := memory.New()

	opts := enrich.Options{
		Cache:     store,
		Extractor: n,
		TextModel: cfg.Generation.TextModel,
		Timeout:   time.Second,
	}
	if client != nil {
		opts.Client = client
		if images {
			opts.Images = router.NewSelector(router.New(cfg.Generation.Image), router.Options{
				Client:    client,
				Extractor: n,
			})
		}
	}
	orch := enrich.New(opts)
	svc := identify.New(p, orch, vocabulary, zap.NewNop())
	return &pipeline{
		srv:    New(cfg, svc, orch, store, zap.NewNop()),
		client: client,
		cache:  store,
	}
}

func (p *pipeline) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	p.srv.ServeHTTP(w, req)
	return w
}

const tulsiReading = `{"pH":7.0,"TDS":120,"Turbidity":2,"Gas":0.1,"ColorIndex":5,"Temp":25}`

func TestHealth(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)
	w := p.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.ModelLoaded)
	assert.Equal(t, vocabulary[:5], resp.Classes)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIdentifyTulsiScenario(t *testing.T) {
	client := fake.New(func(fake.Call) (any, error) {
		return map[string]any{"text": "A sacred basil..."}, nil
	})
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, client, false)

	first := p.do(t, http.MethodPost, "/identify", tulsiReading)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.JSONEq(t, `{"dravya":"Tulsi","description":"A sacred basil...","image_base64":null}`, first.Body.String())
	assert.Equal(t, 1, client.CallCount())

	second := p.do(t, http.MethodPost, "/identify", tulsiReading)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, client.CallCount(), "warm cache must not call the client")
}

func TestIdentifyTulsiScenarioWithImagesEnabled(t *testing.T) {
	client := fake.New(func(fake.Call) (any, error) {
		return map[string]any{"text": "A sacred basil..."}, nil
	})
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, client, true)

	first := p.do(t, http.MethodPost, "/identify", tulsiReading)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.JSONEq(t, `{"dravya":"Tulsi","description":"A sacred basil...","image_base64":null}`, first.Body.String())
	calls := client.CallCount()
	assert.Greater(t, calls, 1, "the image cascade runs once")

	second := p.do(t, http.MethodPost, "/identify", tulsiReading)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, calls, client.CallCount(), "an exhausted image cascade is not rerun")

	_, ok := p.cache.Image("Tulsi")
	assert.False(t, ok, "no image placeholder is cached")
}

func TestIdentifyWarmCacheWithImage(t *testing.T) {
	client := fake.New(func(c fake.Call) (any, error) {
		if c.IsText() {
			return fake.TextResponse("Neem description"), nil
		}
		return fake.InlineImageResponse(testImage), nil
	})
	p := newPipeline(t, fixedPredictor{label: "Neem"}, client, true)

	first := p.do(t, http.MethodPost, "/identify", tulsiReading)
	require.Equal(t, http.StatusOK, first.Code)
	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &resp))
	require.NotNil(t, resp.ImageBase64)
	img, err := base64.StdEncoding.DecodeString(*resp.ImageBase64)
	require.NoError(t, err)
	assert.Equal(t, testImage, img)

	calls := client.CallCount()
	second := p.do(t, http.MethodPost, "/identify", tulsiReading)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, calls, client.CallCount())
}

func TestIdentifyWithoutAPIKey(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Amla"}, nil, true)

	for _, body := range []string{
		tulsiReading,
		`{"pH":0,"TDS":0,"Turbidity":0,"Gas":0,"ColorIndex":0,"Temp":0}`,
		`{"pH":-40,"TDS":1e9,"Turbidity":3,"Gas":2,"ColorIndex":1,"Temp":99}`,
	} {
		w := p.do(t, http.MethodPost, "/identify", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, fmt.Sprintf(`{"dravya":"Amla","description":%q,"image_base64":null}`, enrich.Placeholder), w.Body.String())
	}
}

func TestIdentifyWithTrainedModel(t *testing.T) {
	csv := "pH,TDS,Turbidity,Gas,ColorIndex,Temp,Label\n" +
		"6.8,310,4.0,120,0.40,26.5,Tulsi\n6.9,305,4.1,118,0.41,26.4,Tulsi\n" +
		"7.6,540,9.5,310,0.78,29.0,Neem\n7.5,535,9.7,305,0.77,29.2,Neem\n"
	ds, err := dataset.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	m, err := predictor.Fit(ds, predictor.FitOptions{Kind: predictor.KindCentroid})
	require.NoError(t, err)
	pred, err := predictor.New(m)
	require.NoError(t, err)

	p := newPipeline(t, pred, nil, false)
	w := p.do(t, http.MethodPost, "/identify", `{"pH":7.6,"TDS":538,"Turbidity":9.6,"Gas":308,"ColorIndex":0.78,"Temp":29.1}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Neem", resp.Dravya)
}

func TestIdentifyValidation(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)

	cases := map[string]string{
		"missing field": `{"pH":7,"TDS":120,"Turbidity":2,"Gas":0.1,"ColorIndex":5}`,
		"string value":  `{"pH":"seven","TDS":120,"Turbidity":2,"Gas":0.1,"ColorIndex":5,"Temp":25}`,
		"malformed":     `{"pH":7,`,
		"empty object":  `{}`,
	}
	for name, body := range cases {
		w := p.do(t, http.MethodPost, "/identify", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, name)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), name)
		assert.NotEmpty(t, resp["detail"], name)
	}
}

func TestIdentifyPredictionFailure(t *testing.T) {
	p := newPipeline(t, fixedPredictor{err: fmt.Errorf("%w: corrupt model", predictor.ErrPrediction)}, nil, false)

	w := p.do(t, http.MethodPost, "/identify", tulsiReading)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["detail"], "Model prediction failed:"), resp["detail"])
}

func TestIdentifyMethodNotAllowed(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)
	w := p.do(t, http.MethodGet, "/identify", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDebugImage(t *testing.T) {
	client := fake.New(func(c fake.Call) (any, error) {
		return fake.PredictionsResponse(testImage), nil
	}, "predict")
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, client, true)
	p.cache.PutImage("Tulsi", []byte{1})

	w := p.do(t, http.MethodGet, "/debug/image?dravya=Tulsi", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.DebugImageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	encoded := base64.StdEncoding.EncodeToString(testImage)
	assert.Equal(t, "Tulsi", resp.Dravya)
	assert.True(t, resp.HaveImage)
	assert.Equal(t, len(encoded), resp.Length)
	require.NotNil(t, resp.SampleStart)
	assert.Equal(t, encoded[:60], *resp.SampleStart)

	before := client.CallCount()
	p.do(t, http.MethodGet, "/debug/image?dravya=Tulsi", "")
	assert.Greater(t, client.CallCount(), before, "debug image must bypass the cache")

	cached, _ := p.cache.Image("Tulsi")
	assert.Equal(t, []byte{1}, cached)
}

func TestDebugImageWithoutImage(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, true)

	w := p.do(t, http.MethodGet, "/debug/image?dravya=Neem", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"dravya":"Neem","have_image":false,"length":0,"sample_start":null}`, w.Body.String())

	w = p.do(t, http.MethodGet, "/debug/image", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCacheStats(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)
	p.cache.PutText("Tulsi", "x")

	w := p.do(t, http.MethodGet, "/cache/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats models.CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Texts)
}

func TestCORSPreflight(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)

	req := httptest.NewRequest(http.MethodOptions, "/identify", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	w := httptest.NewRecorder()
	p.srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORSAllowList(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)
	p.srv.cfg.CORS.AllowedOrigins = []string{"https://dravya.example"}
	p.srv.handler = p.srv.withRequestLog(p.srv.withCORS(p.srv.mux))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	p.srv.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://dravya.example")
	w = httptest.NewRecorder()
	p.srv.ServeHTTP(w, req)
	assert.Equal(t, "https://dravya.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServeShutdown(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)
	p.srv.cfg.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.False(t, err != nil && !errors.Is(err, http.ErrServerClosed), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestSearch(t *testing.T) {
	client := fake.New(func(c fake.Call) (any, error) {
		return fake.TextResponse("Neem description"), nil
	})
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, client, false)

	w := p.do(t, http.MethodGet, "/search?name=neem", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"dravya":"Neem","description":"Neem description","image_base64":null}`, w.Body.String())

	p.do(t, http.MethodGet, "/search?name=Neem", "")
	assert.Equal(t, 1, client.CallCount(), "search shares the content cache")

	w = p.do(t, http.MethodGet, "/search?name=Mango", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Tulsi")

	w = p.do(t, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestResearch(t *testing.T) {
	client := fake.New(func(c fake.Call) (any, error) {
		return fake.TextResponse("Neem is bitter and cooling."), nil
	})
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, client, false)

	body := `{"dravya":"Neem","query":"What is its rasa?"}`
	w := p.do(t, http.MethodPost, "/research", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"answer":"Neem is bitter and cooling."}`, w.Body.String())

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, enrich.ResearchPrompt("Neem", "What is its rasa?"), calls[0].Prompt)

	p.do(t, http.MethodPost, "/research", body)
	assert.Equal(t, 2, client.CallCount(), "research answers are not cached")
	_, ok := p.cache.Text("Neem")
	assert.False(t, ok)
}

func TestResearchErrors(t *testing.T) {
	p := newPipeline(t, fixedPredictor{label: "Tulsi"}, nil, false)

	w := p.do(t, http.MethodPost, "/research", `{"dravya":"Neem","query":"uses?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"answer":%q}`, enrich.ResearchPlaceholder), w.Body.String())

	w = p.do(t, http.MethodPost, "/research", `{"dravya":"Mango","query":"uses?"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, body := range []string{`{"dravya":"Neem"}`, `{"query":"uses?"}`, `{"dravya":`} {
		w = p.do(t, http.MethodPost, "/research", body)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
	}
}
