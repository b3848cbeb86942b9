package baseds

import (
	"fmt"
	"strings"

	"github.com/epiblock/baseds/internal/pattern"
)

// Codebook records the methyl-cytosine sequence context of genome
// positions. It is a two-dimensional labeled array of tri-state values
// (context type x local position): a nonzero cell means the position
// matches that context type, with the sign encoding strand; zero means no
// match.
//
// A Codebook is immutable once constructed. Codebooks derived from a
// dataset copy the dataset's attributes rather than aliasing them.
type Codebook struct {
	contextTypes []string
	cytosinePos  int
	contextLen   int

	// positions holds the local position labels of the columns. For a
	// codebook covering a continuous window the labels are 0..n-1.
	positions []int64

	// values is row-major (context type x position).
	values []int8
}

// NewCodebook constructs a codebook from its labels and tri-state matrix.
// positions may be nil for a continuous window, in which case the column
// labels are implicit 0..n-1 where n = len(values)/len(contextTypes).
func NewCodebook(contextTypes []string, positions []int64, values []int8, cytosinePos, contextLen int) (*Codebook, error) {
	if len(contextTypes) == 0 {
		return nil, fmt.Errorf("baseds: codebook requires at least one context type")
	}
	if len(values)%len(contextTypes) != 0 {
		return nil, fmt.Errorf("baseds: codebook matrix of %d values is not divisible by %d context types",
			len(values), len(contextTypes))
	}
	n := len(values) / len(contextTypes)
	if positions != nil && len(positions) != n {
		return nil, fmt.Errorf("baseds: codebook has %d position labels for %d columns", len(positions), n)
	}
	if cytosinePos < 0 || cytosinePos >= contextLen {
		return nil, fmt.Errorf("baseds: cytosine offset %d outside context length %d", cytosinePos, contextLen)
	}
	return &Codebook{
		contextTypes: contextTypes,
		positions:    positions,
		values:       values,
		cytosinePos:  cytosinePos,
		contextLen:   contextLen,
	}, nil
}

// ContextTypes returns the ordered context-type labels.
func (cb *Codebook) ContextTypes() []string {
	out := make([]string, len(cb.contextTypes))
	copy(out, cb.contextTypes)
	return out
}

// CytosineOffset returns the index within a context pattern at which the
// cytosine must appear.
func (cb *Codebook) CytosineOffset() int { return cb.cytosinePos }

// ContextLength returns the fixed width of every context label.
func (cb *Codebook) ContextLength() int { return cb.contextLen }

// NumPositions returns the number of position columns.
func (cb *Codebook) NumPositions() int {
	return len(cb.values) / len(cb.contextTypes)
}

// ValidatePattern uppercases the pattern and checks it against the
// codebook's context length and cytosine offset. It is the single entry
// point guarding malformed patterns; the other methods assume their input
// has passed through it.
func (cb *Codebook) ValidatePattern(p string) (string, error) {
	return validatePattern(p, cb.contextLen, cb.cytosinePos)
}

func validatePattern(p string, contextLen, cytosinePos int) (string, error) {
	p = strings.ToUpper(p)
	if len(p) != contextLen {
		return "", fmt.Errorf("baseds: pattern %q has length %d, context length is %d: %w",
			p, len(p), contextLen, ErrInvalidPattern)
	}
	if p[cytosinePos] != 'C' {
		return "", fmt.Errorf("baseds: pattern %q position %d is not a cytosine: %w",
			p, cytosinePos, ErrInvalidPattern)
	}
	return p, nil
}

// MatchMask returns, per position column, whether the position matches any
// concrete context denoted by the pattern. The pattern may use IUPAC
// ambiguity codes. Values are -1/0/1, so any nonzero sum over the selected
// context rows marks a match without double counting sign.
func (cb *Codebook) MatchMask(p string) ([]bool, error) {
	p, err := cb.ValidatePattern(p)
	if err != nil {
		return nil, err
	}

	contexts, err := pattern.Expand(p)
	if err != nil {
		return nil, fmt.Errorf("baseds: %w: %s", ErrInvalidPattern, err)
	}
	selected := make(map[string]struct{}, len(contexts))
	for _, c := range contexts {
		selected[c] = struct{}{}
	}

	n := cb.NumPositions()
	sums := make([]int, n)
	for row, ct := range cb.contextTypes {
		if _, ok := selected[ct]; !ok {
			continue
		}
		base := row * n
		for j := 0; j < n; j++ {
			sums[j] += int(cb.values[base+j])
		}
	}

	mask := make([]bool, n)
	for j, s := range sums {
		mask[j] = s != 0
	}
	return mask, nil
}

// MatchingPositions returns the sorted position labels matching the
// pattern, shifted by offset into the caller's coordinate frame.
func (cb *Codebook) MatchingPositions(p string, offset int64) ([]int64, error) {
	mask, err := cb.MatchMask(p)
	if err != nil {
		return nil, err
	}

	var out []int64
	for j, m := range mask {
		if !m {
			continue
		}
		if cb.positions != nil {
			out = append(out, cb.positions[j]+offset)
		} else {
			out = append(out, int64(j)+offset)
		}
	}
	return out, nil
}
