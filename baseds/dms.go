package baseds

import "context"

// DMSOptions carries the parameters forwarded to a differential
// methylation site caller.
type DMSOptions struct {
	// Groups maps sample names to group labels. Samples absent from the
	// map are ignored by the caller. Nil tests all samples as one group.
	Groups map[string]string

	// OutputPath, when non-empty, asks the caller to persist its result
	// instead of returning it.
	OutputPath string

	// MCGPattern is the methylated-cytosine context pattern. Default "CGN".
	MCGPattern string

	// NPermute is the number of permutations. Default 3000.
	NPermute int

	// Alpha is the significance threshold. Default 0.01.
	Alpha float64

	// MaxRowCount caps the base count per sample row. Default 50.
	MaxRowCount int

	// MaxTotalCount caps the total base count per site. Default 3000.
	MaxTotalCount int

	// FilterSig drops non-significant sites from the output. Default true.
	FilterSig bool

	// MergeStrand merges base counts of adjacent CpG sites. Default true.
	MergeStrand bool

	// EstimateP estimates p-values from an approximated null distribution,
	// enabling FDR correction. Default true.
	EstimateP bool

	// CPU is the caller's parallelism. Default 1.
	CPU int

	// OutputOptions are format-specific options passed through to the
	// caller's writer when OutputPath is set.
	OutputOptions map[string]any
}

// DefaultDMSOptions returns the standard DMS-calling parameters.
func DefaultDMSOptions() DMSOptions {
	return DMSOptions{
		MCGPattern:    "CGN",
		NPermute:      3000,
		Alpha:         0.01,
		MaxRowCount:   50,
		MaxTotalCount: 3000,
		FilterSig:     true,
		MergeStrand:   true,
		EstimateP:     true,
		CPU:           1,
	}
}

// DMSCaller is the external differential-methylation-site caller. It
// receives a fully resolved chromosome dataset and either returns the
// result or writes it to opts.OutputPath and returns nil.
type DMSCaller interface {
	CallDMS(ctx context.Context, ds *ChromDataset, opts DMSOptions) (*RegionDataset, error)
}

// CallDMS forwards the dataset and parameters to the given caller.
// Zero-valued numeric and pattern fields in opts are replaced with the
// defaults from DefaultDMSOptions; no statistical logic lives here.
func (d *ChromDataset) CallDMS(ctx context.Context, caller DMSCaller, opts DMSOptions) (*RegionDataset, error) {
	def := DefaultDMSOptions()
	if opts.MCGPattern == "" {
		opts.MCGPattern = def.MCGPattern
	}
	if opts.NPermute == 0 {
		opts.NPermute = def.NPermute
	}
	if opts.Alpha == 0 {
		opts.Alpha = def.Alpha
	}
	if opts.MaxRowCount == 0 {
		opts.MaxRowCount = def.MaxRowCount
	}
	if opts.MaxTotalCount == 0 {
		opts.MaxTotalCount = def.MaxTotalCount
	}
	if opts.CPU == 0 {
		opts.CPU = def.CPU
	}
	return caller.CallDMS(ctx, d, opts)
}
