package baseds

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// regionRow is one Parquet record of an exported region dataset.
type regionRow struct {
	Chrom  string `parquet:"chrom"`
	Region string `parquet:"region"`
	MCType string `parquet:"mc_type"`
	Sample string `parquet:"sample"`
	Count  int64  `parquet:"count"`
}

// WriteRegionParquet writes an aggregated region dataset as a long-format
// Parquet table with one row per (region, context type, sample) cell.
// Rows are ordered region-major, matching the region label order.
func WriteRegionParquet(w io.Writer, rds *RegionDataset) error {
	pw := parquet.NewGenericWriter[regionRow](w, parquet.Compression(&parquet.Snappy))

	rows := make([]regionRow, 0, len(rds.ContextTypes)*len(rds.Samples))
	for ri, label := range rds.Labels {
		rows = rows[:0]
		for mi, mcType := range rds.ContextTypes {
			for si, sample := range rds.Samples {
				rows = append(rows, regionRow{
					Chrom:  rds.Chrom,
					Region: label,
					MCType: mcType,
					Sample: sample,
					Count:  rds.CountAt(mi, si, ri),
				})
			}
		}
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("baseds: writing parquet rows for region %s: %w", label, err)
		}
	}

	if err := pw.Close(); err != nil {
		return fmt.Errorf("baseds: closing parquet writer: %w", err)
	}
	return nil
}
