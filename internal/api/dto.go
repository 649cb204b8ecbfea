package api

// ScoreRequest is the body of POST /v1/score. Exactly one of Sequences and
// Embeddings must be supplied: raw sequences are one-hot encoded server-side,
// embeddings are passed to the model as-is. AntigenSequences is required by
// paired models and rejected otherwise.
type ScoreRequest struct {
	Sequences        []string      `json:"sequences,omitempty"`
	AntigenSequences []string      `json:"antigen_sequences,omitempty"`
	Embeddings       [][][]float32 `json:"embeddings,omitempty"`
	GetVar           bool          `json:"get_var,omitempty"`
}

// ScoreResponse is the result of a scoring call. Predictions is set for
// regression and binary classification, Probabilities for multiclass, and
// Variance only when the model's GP head produced one.
type ScoreResponse struct {
	ID            string      `json:"id"`
	Object        string      `json:"object"`
	Model         string      `json:"model"`
	Objective     string      `json:"objective"`
	Predictions   []float32   `json:"predictions,omitempty"`
	Probabilities [][]float32 `json:"probabilities,omitempty"`
	Variance      []float32   `json:"variance,omitempty"`
	Usage         ScoreUsage  `json:"usage"`
}

type ScoreUsage struct {
	Sequences int `json:"sequences"`
	Residues  int `json:"residues"`
}

// ModelCard describes the served model, returned by GET /v1/model.
type ModelCard struct {
	Model         string `json:"model"`
	Objective     string `json:"objective"`
	InputDim      int    `json:"input_dim"`
	HiddenDim     int    `json:"hidden_dim"`
	NLayers       int    `json:"n_layers"`
	KernelSize    int    `json:"kernel_size"`
	RepDim        int    `json:"rep_dim"`
	NumCategories int    `json:"num_categories,omitempty"`
	Paired        bool   `json:"paired"`
	LLGP          bool   `json:"llgp"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
