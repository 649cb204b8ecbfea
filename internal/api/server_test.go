package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/jlparkI/resp-protein-toolkit/pkg/bytenet"
	"github.com/jlparkI/resp-protein-toolkit/pkg/encode"
)

func newTestEcho(t *testing.T, cfg bytenet.Config) *echo.Echo {
	t.Helper()
	model, err := bytenet.New(cfg)
	if err != nil {
		t.Fatalf("bytenet.New: %v", err)
	}
	server := NewServer(model, encode.New(false), "test-model")
	e := echo.New()
	server.Register(e)
	return e
}

func testModelConfig(objective bytenet.Objective) bytenet.Config {
	cfg := bytenet.Config{
		InputDim:   20,
		HiddenDim:  8,
		NLayers:    1,
		KernelSize: 3,
		DilFactor:  1,
		RepDim:     4,
		Objective:  objective,
		Seed:       9,
	}
	if objective == bytenet.Multiclass {
		cfg.NumCategories = 3
	}
	return cfg
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestScoreSequences(t *testing.T) {
	e := newTestEcho(t, testModelConfig(bytenet.Regression))
	rec := doJSON(t, e, http.MethodPost, "/v1/score",
		`{"sequences": ["ACDEF", "GHIKL"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Predictions) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(resp.Predictions))
	}
	if resp.Objective != "regression" || resp.Model != "test-model" {
		t.Fatalf("unexpected response metadata: %+v", resp)
	}
	if resp.Usage.Sequences != 2 || resp.Usage.Residues != 10 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if !strings.HasPrefix(resp.ID, "score_") {
		t.Fatalf("unexpected id %q", resp.ID)
	}
}

func TestScoreMulticlassProbabilities(t *testing.T) {
	e := newTestEcho(t, testModelConfig(bytenet.Multiclass))
	rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"sequences": ["ACDEF"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Probabilities) != 1 || len(resp.Probabilities[0]) != 3 {
		t.Fatalf("unexpected probabilities: %v", resp.Probabilities)
	}
	if resp.Predictions != nil {
		t.Fatal("multiclass response should not carry flat predictions")
	}
}

func TestScoreWithVariance(t *testing.T) {
	cfg := testModelConfig(bytenet.Regression)
	cfg.LLGP = true
	e := newTestEcho(t, cfg)
	rec := doJSON(t, e, http.MethodPost, "/v1/score",
		`{"sequences": ["ACDEF"], "get_var": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Variance) != 1 {
		t.Fatalf("expected 1 variance, got %d", len(resp.Variance))
	}
}

func TestScoreEmbeddings(t *testing.T) {
	cfg := testModelConfig(bytenet.Regression)
	cfg.InputDim = 2
	e := newTestEcho(t, cfg)
	rec := doJSON(t, e, http.MethodPost, "/v1/score",
		`{"embeddings": [[[0.5, -0.5], [1, 0]]]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(resp.Predictions))
	}
}

func TestScoreBadRequests(t *testing.T) {
	e := newTestEcho(t, testModelConfig(bytenet.Regression))
	for name, body := range map[string]string{
		"empty":             `{}`,
		"both inputs":       `{"sequences": ["ACDEF"], "embeddings": [[[1]]]}`,
		"unknown symbol":    `{"sequences": ["ACDEX"]}`,
		"ragged lengths":    `{"sequences": ["ACDEF", "AC"]}`,
		"stray antigen":     `{"sequences": ["ACDEF"], "antigen_sequences": ["ACDEF"]}`,
		"malformed body":    `{"sequences": `,
		"ragged embeddings": `{"embeddings": [[[1, 2], [3]]]}`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/score", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400 (body %s)", name, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "invalid_request_error") {
			t.Fatalf("%s: missing error envelope: %s", name, rec.Body.String())
		}
	}
}

func TestScorePairedModel(t *testing.T) {
	cfg := testModelConfig(bytenet.Regression)
	cfg.AntigenDim = 20
	e := newTestEcho(t, cfg)

	rec := doJSON(t, e, http.MethodPost, "/v1/score", `{"sequences": ["ACDEF"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("paired model without antigen: status %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/score",
		`{"sequences": ["ACDEF"], "antigen_sequences": ["GHIKLMN"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(resp.Predictions))
	}
	if resp.Usage.Residues != 12 {
		t.Fatalf("expected 12 residues counted, got %d", resp.Usage.Residues)
	}
}

func TestModelCard(t *testing.T) {
	e := newTestEcho(t, testModelConfig(bytenet.Multiclass))
	rec := doJSON(t, e, http.MethodGet, "/v1/model", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var card ModelCard
	if err := json.Unmarshal(rec.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if card.Objective != "multiclass" || card.NumCategories != 3 || card.InputDim != 20 {
		t.Fatalf("unexpected card: %+v", card)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEcho(t, testModelConfig(bytenet.Regression))
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
}
