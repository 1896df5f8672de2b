// Package bundle persists the fitted encoding pipeline and classifier
// together with the schema they were fit on.
package bundle

import (
	"fmt"
	"slices"
	"time"

	"github.com/mimir-aip/obesity-tc/pkg/features"
	"github.com/mimir-aip/obesity-tc/pkg/forest"
	"github.com/mimir-aip/obesity-tc/pkg/models"
	"github.com/mimir-aip/obesity-tc/pkg/storage"
)

// FormatVersion is bumped whenever the serialized layout changes
const FormatVersion = 1

// BalancerInfo records how the training partition was oversampled. The
// balancer itself is never applied at inference time.
type BalancerInfo struct {
	Method    string `json:"method"`
	Neighbors int    `json:"neighbors"`
	Seed      int64  `json:"seed"`
}

// Bundle is the fitted unit produced by a training run. It is immutable
// once saved and safe for concurrent read-only use after Load.
type Bundle struct {
	FormatVersion int                         `json:"format_version"`
	RunID         string                      `json:"run_id"`
	CreatedAt     time.Time                   `json:"created_at"`
	Schema        models.Schema               `json:"schema"`
	Classes       []string                    `json:"classes"`
	Transformer   *features.ColumnTransformer `json:"transformer"`
	Balancer      BalancerInfo                `json:"balancer"`
	Forest        *forest.RandomForest        `json:"forest"`
}

// New assembles a bundle from fitted components
func New(runID string, schema models.Schema, t *features.ColumnTransformer, b BalancerInfo, rf *forest.RandomForest) *Bundle {
	return &Bundle{
		FormatVersion: FormatVersion,
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Schema:        schema,
		Classes:       append([]string(nil), rf.Classes...),
		Transformer:   t,
		Balancer:      b,
		Forest:        rf,
	}
}

// Validate checks that the components agree with each other and with the
// schema. Load wraps any failure as ErrSerializationFailure.
func (b *Bundle) Validate() error {
	if b.FormatVersion != FormatVersion {
		return fmt.Errorf("unsupported format version %d", b.FormatVersion)
	}
	if err := b.Schema.Validate(); err != nil {
		return err
	}
	if b.Transformer == nil {
		return fmt.Errorf("bundle has no transformer")
	}
	if b.Forest == nil {
		return fmt.Errorf("bundle has no classifier")
	}
	if !slices.Equal(b.Transformer.Numeric, b.Schema.Numeric) || !slices.Equal(b.Transformer.Categorical, b.Schema.Categorical) {
		return fmt.Errorf("transformer columns disagree with schema")
	}
	if err := b.Transformer.Validate(); err != nil {
		return fmt.Errorf("invalid transformer: %w", err)
	}
	if err := b.Forest.Validate(); err != nil {
		return fmt.Errorf("invalid classifier: %w", err)
	}
	if len(b.Forest.FeatureNames) != b.Transformer.Width() {
		return fmt.Errorf("classifier expects %d features, transformer produces %d", len(b.Forest.FeatureNames), b.Transformer.Width())
	}
	if !slices.Equal(b.Classes, b.Forest.Classes) {
		return fmt.Errorf("bundle classes disagree with classifier")
	}
	return nil
}

// Save validates the bundle and writes it atomically to path
func Save(path string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: refusing to save invalid bundle: %v", models.ErrSerializationFailure, err)
	}
	return storage.WriteJSON(path, b)
}

// Load reads and validates a bundle. A missing file is ErrMissingInput;
// an undecodable or inconsistent one is ErrSerializationFailure.
func Load(path string) (*Bundle, error) {
	var b Bundle
	if err := storage.ReadJSON(path, &b); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSerializationFailure, path, err)
	}
	return &b, nil
}
