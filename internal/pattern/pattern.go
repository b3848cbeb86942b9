// Package pattern expands IUPAC nucleotide patterns into the concrete
// sequence contexts they denote.
package pattern

import "fmt"

// iupacBases maps IUPAC nucleotide codes to the set of concrete bases they
// stand for. Ambiguity codes expand to two or more bases (e.g., R = A/G).
var iupacBases = map[byte]string{
	'A': "A",
	'C': "C",
	'G': "G",
	'T': "T",
	'U': "T",
	'R': "AG",
	'Y': "CT",
	'S': "CG",
	'W': "AT",
	'K': "GT",
	'M': "AC",
	'B': "CGT",
	'D': "AGT",
	'H': "ACT",
	'V': "ACG",
	'N': "ACGT",
}

// Expand returns every concrete context string denoted by an IUPAC pattern,
// in lexicographic order of expansion (cartesian product, leftmost position
// varying slowest). The pattern must be uppercase.
func Expand(p string) ([]string, error) {
	sets := make([]string, len(p))
	total := 1
	for i := 0; i < len(p); i++ {
		bases, ok := iupacBases[p[i]]
		if !ok {
			return nil, fmt.Errorf("invalid IUPAC base %q in pattern %q", p[i], p)
		}
		sets[i] = bases
		total *= len(bases)
	}

	out := make([]string, 0, total)
	buf := make([]byte, len(p))

	var walk func(i int)
	walk = func(i int) {
		if i == len(p) {
			out = append(out, string(buf))
			return
		}
		for j := 0; j < len(sets[i]); j++ {
			buf[i] = sets[i][j]
			walk(i + 1)
		}
	}
	walk(0)

	return out, nil
}
