package loader

import (
	"context"
	"os"

	"github.com/rocketlaunchr/dataframe-go/imports"
)

// LoadCSV reads a CSV image with addr and word columns using
// dataframe-go.
// - First row is header (column names)
// - Values may be decimal integers or 0x-prefixed hex strings
func LoadCSV(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ctx := context.Background()
	df, err := imports.LoadFromCSV(ctx, file, imports.CSVLoadOptions{
		InferDataTypes: true,
	})
	if err != nil {
		return nil, err
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyImage
	}
	return frameImage(df)
}
