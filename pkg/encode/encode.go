// Package encode turns raw amino-acid sequences into the numeric inputs the
// sequence models consume: one-hot tensors, flattened one-hot matrices and
// integer token ids over the standard amino-acid alphabet.
package encode

import (
	"fmt"

	"github.com/jlparkI/resp-protein-toolkit/pkg/tensor"
)

// StandardAlphabet is the twenty canonical amino acids in the conventional
// ordering.
const StandardAlphabet = "ACDEFGHIKLMNPQRSTVWY"

// Gap is the alignment gap symbol, accepted only when the encoder is built
// with gap support.
const Gap = '-'

// Encoder maps sequences over a fixed alphabet to numeric encodings. The
// zero value is not usable; construct with New.
type Encoder struct {
	alphabet string
	index    [256]int8
}

// New builds an encoder over the standard amino-acid alphabet. When allowGap
// is set, the gap symbol is included as an additional final token.
func New(allowGap bool) *Encoder {
	alphabet := StandardAlphabet
	if allowGap {
		alphabet += string(Gap)
	}
	e := &Encoder{alphabet: alphabet}
	for i := range e.index {
		e.index[i] = -1
	}
	for i := 0; i < len(alphabet); i++ {
		e.index[alphabet[i]] = int8(i)
	}
	return e
}

// AlphabetSize returns the number of tokens, which is also the one-hot
// channel count.
func (e *Encoder) AlphabetSize() int {
	return len(e.alphabet)
}

func (e *Encoder) validate(seqs []string) (int, error) {
	if len(seqs) == 0 {
		return 0, fmt.Errorf("encode: empty sequence batch")
	}
	length := len(seqs[0])
	for i, seq := range seqs {
		if len(seq) == 0 {
			return 0, fmt.Errorf("encode: sequence %d is empty", i)
		}
		if len(seq) != length {
			return 0, fmt.Errorf("encode: sequence %d has length %d, batch expects %d", i, len(seq), length)
		}
		for p := 0; p < len(seq); p++ {
			if e.index[seq[p]] < 0 {
				return 0, fmt.Errorf("encode: sequence %d has unrecognized symbol %q at position %d", i, seq[p], p)
			}
		}
	}
	return length, nil
}

// OneHot encodes the batch as a (batch, length, alphabet) sequence tensor.
// All sequences must share one length; unknown symbols are errors naming the
// offending sequence and position.
func (e *Encoder) OneHot(seqs []string) (*tensor.Seq, error) {
	length, err := e.validate(seqs)
	if err != nil {
		return nil, err
	}
	out := tensor.NewSeq(len(seqs), length, len(e.alphabet))
	for b, seq := range seqs {
		for p := 0; p < len(seq); p++ {
			out.Pos(b, p)[e.index[seq[p]]] = 1
		}
	}
	return out, nil
}

// OneHotFlat encodes the batch as a (batch, length*alphabet) matrix, the
// layout classic kernel methods expect.
func (e *Encoder) OneHotFlat(seqs []string) (*tensor.Mat, error) {
	length, err := e.validate(seqs)
	if err != nil {
		return nil, err
	}
	width := len(e.alphabet)
	out := tensor.NewMat(len(seqs), length*width)
	for b, seq := range seqs {
		row := out.Row(b)
		for p := 0; p < len(seq); p++ {
			row[p*width+int(e.index[seq[p]])] = 1
		}
	}
	return out, nil
}

// Integer encodes the batch as token ids, one row per sequence. Unlike the
// one-hot encoders it accepts varying lengths, since no tensor is assembled.
func (e *Encoder) Integer(seqs []string) ([][]int8, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("encode: empty sequence batch")
	}
	out := make([][]int8, len(seqs))
	for b, seq := range seqs {
		if len(seq) == 0 {
			return nil, fmt.Errorf("encode: sequence %d is empty", b)
		}
		ids := make([]int8, len(seq))
		for p := 0; p < len(seq); p++ {
			id := e.index[seq[p]]
			if id < 0 {
				return nil, fmt.Errorf("encode: sequence %d has unrecognized symbol %q at position %d", b, seq[p], p)
			}
			ids[p] = id
		}
		out[b] = ids
	}
	return out, nil
}
