// Package api exposes a trained sequence model over HTTP: a scoring
// endpoint, a model card and a health check.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/jlparkI/resp-protein-toolkit/pkg/bytenet"
	"github.com/jlparkI/resp-protein-toolkit/pkg/encode"
)

// Server serves one model. Requests are handled synchronously; the model is
// not safe for concurrent parameter mutation, but inference calls are pure
// so concurrent scoring is fine once training is done.
type Server struct {
	model   *bytenet.Model
	encoder *encode.Encoder
	name    string
}

// NewServer wraps a model for serving under the given display name.
func NewServer(model *bytenet.Model, encoder *encode.Encoder, name string) *Server {
	if encoder == nil {
		encoder = encode.New(false)
	}
	if name == "" {
		name = "bytenet"
	}
	return &Server{model: model, encoder: encoder, name: name}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/score", s.handleScore)
	e.GET("/v1/model", s.handleModelCard)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleScore(c *echo.Context) error {
	req, err := decodeJSON[ScoreRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("malformed request body: %v", err))
	}
	resp, err := s.score(req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeServerError(c, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) score(req ScoreRequest) (*ScoreResponse, error) {
	if len(req.Sequences) == 0 && len(req.Embeddings) == 0 {
		return nil, newInvalidRequest("either sequences or embeddings must be supplied")
	}
	if len(req.Sequences) > 0 && len(req.Embeddings) > 0 {
		return nil, newInvalidRequest("sequences and embeddings are mutually exclusive")
	}

	var (
		pred   bytenet.Prediction
		usage  ScoreUsage
		err    error
		paired = s.model.Paired()
		hasAg  = len(req.AntigenSequences) > 0
	)

	switch {
	case len(req.Embeddings) > 0:
		if paired {
			return nil, newInvalidRequest("paired models accept sequences, not embeddings")
		}
		if hasAg {
			return nil, newInvalidRequest("antigen_sequences requires sequence input")
		}
		usage.Sequences = len(req.Embeddings)
		for _, seq := range req.Embeddings {
			usage.Residues += len(seq)
		}
		pred, err = s.model.Predict(req.Embeddings, req.GetVar)
		if err != nil {
			// Malformed embedding payloads are the caller's fault.
			return nil, newInvalidRequest(err.Error())
		}
	case paired:
		if !hasAg {
			return nil, newInvalidRequest("this model scores antibody/antigen pairs; antigen_sequences is required")
		}
		if len(req.AntigenSequences) != len(req.Sequences) {
			return nil, newInvalidRequest(fmt.Sprintf("got %d antibody but %d antigen sequences", len(req.Sequences), len(req.AntigenSequences)))
		}
		var ab, ag [][][]float32
		ab, err = s.encodeBatch(req.Sequences, &usage)
		if err != nil {
			return nil, err
		}
		ag, err = s.encodeBatch(req.AntigenSequences, &usage)
		if err != nil {
			return nil, err
		}
		usage.Sequences = len(req.Sequences)
		pred, err = s.model.PredictPair(ab, ag, req.GetVar)
	default:
		if hasAg {
			return nil, newInvalidRequest("this model scores single sequences; antigen_sequences is not accepted")
		}
		var x [][][]float32
		x, err = s.encodeBatch(req.Sequences, &usage)
		if err != nil {
			return nil, err
		}
		usage.Sequences = len(req.Sequences)
		pred, err = s.model.Predict(x, req.GetVar)
	}
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	return &ScoreResponse{
		ID:            "score_" + uuid.NewString(),
		Object:        "score",
		Model:         s.name,
		Objective:     string(s.model.Config().Objective),
		Predictions:   pred.Values,
		Probabilities: pred.Categorical,
		Variance:      pred.Variance,
		Usage:         usage,
	}, nil
}

// encodeBatch one-hot encodes raw sequences, mapping encoding failures to
// invalid-request errors since they describe the caller's input.
func (s *Server) encodeBatch(seqs []string, usage *ScoreUsage) ([][][]float32, error) {
	oneHot, err := s.encoder.OneHot(seqs)
	if err != nil {
		return nil, newInvalidRequest(err.Error())
	}
	for _, seq := range seqs {
		usage.Residues += len(seq)
	}
	out := make([][][]float32, oneHot.B)
	for b := 0; b < oneHot.B; b++ {
		seq := make([][]float32, oneHot.L)
		for l := 0; l < oneHot.L; l++ {
			pos := make([]float32, oneHot.C)
			copy(pos, oneHot.Pos(b, l))
			seq[l] = pos
		}
		out[b] = seq
	}
	return out, nil
}

func (s *Server) handleModelCard(c *echo.Context) error {
	cfg := s.model.Config()
	return c.JSON(http.StatusOK, ModelCard{
		Model:         s.name,
		Objective:     string(cfg.Objective),
		InputDim:      cfg.InputDim,
		HiddenDim:     cfg.HiddenDim,
		NLayers:       cfg.NLayers,
		KernelSize:    cfg.KernelSize,
		RepDim:        cfg.RepDim,
		NumCategories: cfg.NumCategories,
		Paired:        s.model.Paired(),
		LLGP:          cfg.LLGP,
	})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
