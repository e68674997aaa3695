package loader

import (
	"bytes"
	"context"
	"os"

	"github.com/rocketlaunchr/dataframe-go/imports"
)

// LoadJSON reads a JSON image in the format
// [{"addr": 0, "word": 5243027}, ...] and returns its entries.
// Column types are inferred automatically.
func LoadJSON(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	reader := bytes.NewReader(data)
	ctx := context.Background()

	df, err := imports.LoadFromJSON(ctx, reader)
	if err != nil {
		return nil, err
	}

	if df == nil || len(df.Series) == 0 {
		return nil, ErrEmptyImage
	}
	return frameImage(df)
}
