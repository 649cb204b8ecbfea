package bytenet

import (
	"fmt"

	"github.com/jlparkI/resp-protein-toolkit/internal/safetensors"
	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

// Checkpoint tensor names follow a stable dotted scheme:
// antibody.block.3.conv.weight, head.out_weight, and so on. The antigen
// tower appears only for paired models; the GP head additionally persists
// its random features and precision matrix so calibration survives a
// save/load round trip.

type namedParam struct {
	name  string
	shape []int
	data  []float32
}

func (n *layerNorm) params(prefix string) []namedParam {
	return []namedParam{
		{prefix + ".weight", []int{len(n.Gamma)}, n.Gamma},
		{prefix + ".bias", []int{len(n.Beta)}, n.Beta},
	}
}

func (p *PositionFeedForward) params(prefix string) []namedParam {
	out := []namedParam{
		{prefix + ".weight", []int{p.Weight.R, p.Weight.C}, p.Weight.Data},
		{prefix + ".bias", []int{len(p.Bias)}, p.Bias},
	}
	if p.sn != nil {
		out = append(out, spectralParams(prefix, p.sn)...)
	}
	return out
}

func (c *ConvLayer) params(prefix string) []namedParam {
	out := []namedParam{
		{prefix + ".weight", []int{c.Weight.R, c.Weight.C}, c.Weight.Data},
	}
	if c.Bias != nil {
		out = append(out, namedParam{prefix + ".bias", []int{len(c.Bias)}, c.Bias})
	}
	if c.sn != nil {
		out = append(out, spectralParams(prefix, c.sn)...)
	}
	return out
}

// spectralParams persists the power-iteration vectors so a loaded model's
// operator-norm estimates match the saved one without retraining.
func spectralParams(prefix string, sn *tensor.SpectralNorm) []namedParam {
	return []namedParam{
		{prefix + ".sn_u", []int{len(sn.U)}, sn.U},
		{prefix + ".sn_v", []int{len(sn.V)}, sn.V},
	}
}

func (b *ByteNetBlock) params(prefix string) []namedParam {
	var out []namedParam
	out = append(out, b.ln1.params(prefix+".ln1")...)
	out = append(out, b.pff1.params(prefix+".pff1")...)
	out = append(out, b.ln2.params(prefix+".ln2")...)
	out = append(out, b.conv.params(prefix+".conv")...)
	out = append(out, b.ln3.params(prefix+".ln3")...)
	out = append(out, b.pff2.params(prefix+".pff2")...)
	return out
}

func (e *Encoder) params(prefix string) []namedParam {
	var out []namedParam
	out = append(out, e.adjuster.params(prefix+".adjuster")...)
	for i, block := range e.blocks {
		out = append(out, block.params(fmt.Sprintf("%s.block.%d", prefix, i))...)
	}
	out = append(out, e.down.params(prefix+".down")...)
	out = append(out, e.norm.params(prefix+".norm")...)
	return out
}

func (m *Model) namedParams() []namedParam {
	out := m.antibody.params("antibody")
	if m.antigen != nil {
		out = append(out, m.antigen.params("antigen")...)
	}
	switch h := m.head.(type) {
	case *linearHead:
		out = append(out,
			namedParam{"head.weight", []int{h.Weight.R, h.Weight.C}, h.Weight.Data},
			namedParam{"head.bias", []int{len(h.Bias)}, h.Bias},
		)
	case *gpHead:
		proj := h.layer.Projection
		w := h.layer.OutWeight
		out = append(out,
			namedParam{"head.projection", []int{proj.R, proj.C}, proj.Data},
			namedParam{"head.out_weight", []int{w.R, w.C}, w.Data},
		)
	}
	return out
}

// Save writes every model parameter, including GP calibration state, to a
// safetensors file at path.
func (m *Model) Save(path string) error {
	tensors := make(map[string]safetensors.Tensor)
	for _, p := range m.namedParams() {
		tensors[p.name] = safetensors.Tensor{Shape: p.shape, Data: p.data}
	}
	if m.gp != nil {
		state := m.gp.PrecisionState()
		n := m.gp.Config().RFFs
		data := make([]float32, len(state))
		for i, v := range state {
			data[i] = float32(v)
		}
		tensors["head.precision"] = safetensors.Tensor{Shape: []int{n, n}, Data: data}
	}
	if err := safetensors.Write(path, tensors); err != nil {
		return fmt.Errorf("bytenet: save checkpoint: %w", err)
	}
	return nil
}

// Load constructs a model from cfg and restores its parameters from the
// checkpoint at path. Every expected tensor must be present with the shape
// the configuration implies, and the file may not contain extras, so a
// config/checkpoint mismatch fails instead of silently mixing weights.
func Load(path string, cfg Config) (*Model, error) {
	m, err := New(cfg)
	if err != nil {
		return nil, err
	}
	f, err := safetensors.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bytenet: open checkpoint: %w", err)
	}
	defer func() { _ = f.Close() }()

	seen := make(map[string]bool, len(f.Tensors))
	for _, p := range m.namedParams() {
		if err := loadInto(f, p); err != nil {
			return nil, err
		}
		seen[p.name] = true
	}
	if m.gp != nil {
		data, info, err := f.ReadTensorF32("head.precision")
		if err != nil {
			return nil, fmt.Errorf("bytenet: checkpoint: %w", err)
		}
		n := m.gp.Config().RFFs
		if len(info.Shape) != 2 || info.Shape[0] != n || info.Shape[1] != n {
			return nil, fmt.Errorf("bytenet: checkpoint tensor head.precision has shape %v, want [%d %d]", info.Shape, n, n)
		}
		state := make([]float64, len(data))
		for i, v := range data {
			state[i] = float64(v)
		}
		if err := m.gp.SetPrecisionState(state); err != nil {
			return nil, fmt.Errorf("bytenet: checkpoint: %w", err)
		}
		seen["head.precision"] = true
	}
	for name := range f.Tensors {
		if !seen[name] {
			return nil, fmt.Errorf("bytenet: checkpoint holds unexpected tensor %s", name)
		}
	}
	return m, nil
}

func loadInto(f *safetensors.File, p namedParam) error {
	data, info, err := f.ReadTensorF32(p.name)
	if err != nil {
		return fmt.Errorf("bytenet: checkpoint: %w", err)
	}
	if !shapeEqual(info.Shape, p.shape) {
		return fmt.Errorf("bytenet: checkpoint tensor %s has shape %v, want %v", p.name, info.Shape, p.shape)
	}
	copy(p.data, data)
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
