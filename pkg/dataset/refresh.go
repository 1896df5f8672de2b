package dataset

import (
	"errors"
	"fmt"
	"os"

	"github.com/mimir-aip/obesity-tc/pkg/models"
)

// EnsureFresh rebuilds the processed table at dst from the raw table at src
// when dst is missing or older than src. It reports whether a rebuild
// happened and is safe to call repeatedly.
func EnsureFresh(src, dst, rawTarget string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: source table %s", models.ErrMissingInput, src)
		}
		return false, fmt.Errorf("failed to stat %s: %w", src, err)
	}

	dstInfo, err := os.Stat(dst)
	switch {
	case err == nil:
		if !dstInfo.ModTime().Before(srcInfo.ModTime()) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("failed to stat %s: %w", dst, err)
	}

	raw, err := ReadCSVFile(src)
	if err != nil {
		return false, err
	}
	processed, err := NewPreprocessor(rawTarget).Apply(raw)
	if err != nil {
		return false, fmt.Errorf("failed to preprocess %s: %w", src, err)
	}
	if err := SaveCSVFile(dst, processed); err != nil {
		return false, err
	}
	return true, nil
}
