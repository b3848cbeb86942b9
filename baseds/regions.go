package baseds

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Region is a half-open genomic interval [Start, End), 0-based, with an
// optional name used as the output label in region aggregation and an
// optional chromosome restricting it to one chromosome.
type Region struct {
	Name  string
	Chrom string
	Start int64
	End   int64
}

// Regions is an ordered region table. Row order is preserved as the output
// region order in aggregation.
type Regions []Region

// NewRegions builds an unnamed, chromosome-agnostic region table from
// (start, end) pairs. Labels default to the start coordinate.
func NewRegions(pairs [][2]int64) Regions {
	out := make(Regions, len(pairs))
	for i, p := range pairs {
		out[i] = Region{
			Name:  strconv.FormatInt(p[0], 10),
			Start: p[0],
			End:   p[1],
		}
	}
	return out
}

// FilterChrom returns the rows restricted to chrom. Rows with an empty
// Chrom field apply to every chromosome and are kept.
func (r Regions) FilterChrom(chrom string) Regions {
	var out Regions
	for _, reg := range r {
		if reg.Chrom == "" || reg.Chrom == chrom {
			out = append(out, reg)
		}
	}
	return out
}

// totalLength sums the interval lengths, treating inverted intervals as
// empty rather than failing.
func (r Regions) totalLength() int64 {
	var total int64
	for _, reg := range r {
		if reg.End > reg.Start {
			total += reg.End - reg.Start
		}
	}
	return total
}

// expandRegions flattens a region table into the explicit array of every
// integer position covered by any interval. Overlapping intervals produce
// duplicates on purpose; sorting and deduplication are the position-fetch
// operation's concern. Runs in O(total length) with a single allocation.
func expandRegions(regions Regions) []int64 {
	out := make([]int64, 0, regions.totalLength())
	for _, reg := range regions {
		for p := reg.Start; p < reg.End; p++ {
			out = append(out, p)
		}
	}
	return out
}

// ReadBED parses a BED-style region table: tab- or space-separated rows of
// either (start, end) or (chrom, start, end), with an optional fourth name
// column. Lines starting with '#', "track", or "browser" are skipped.
// Unnamed rows are labeled by their start coordinate.
func ReadBED(r io.Reader) (Regions, error) {
	var out Regions
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") ||
			strings.HasPrefix(text, "track") || strings.HasPrefix(text, "browser") {
			continue
		}

		fields := strings.Fields(text)
		var reg Region
		var startField int
		switch {
		case len(fields) >= 3 && !isNumeric(fields[0]):
			reg.Chrom = fields[0]
			startField = 1
		case len(fields) >= 2:
			startField = 0
		default:
			return nil, fmt.Errorf("baseds: bed line %d: expected 2 or 3 coordinate columns", line)
		}

		start, err := strconv.ParseInt(fields[startField], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("baseds: bed line %d: bad start %q: %w", line, fields[startField], err)
		}
		end, err := strconv.ParseInt(fields[startField+1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("baseds: bed line %d: bad end %q: %w", line, fields[startField+1], err)
		}
		reg.Start, reg.End = start, end

		if len(fields) > startField+2 {
			reg.Name = fields[startField+2]
		} else {
			reg.Name = strconv.FormatInt(start, 10)
		}
		out = append(out, reg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
