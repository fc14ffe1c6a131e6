package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/trainwatch/internal/config"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a pipeline
// configuration, the batch outputs of every epoch, and what a run over them
// must produce.
type Fixture struct {
	Description string        `json:"description"`
	Config      config.Config `json:"config"`
	Epochs      [][]any       `json:"epochs"`
	Expected    Expected      `json:"expected"`
}

// Expected holds the reference outcome. Every map is keyed by metric name;
// absent metrics are not checked.
type Expected struct {
	EpochMeans map[string][]float64 `json:"epoch_means"`
	Best       map[string]float64   `json:"best"`
	BestEpoch  map[string]int64     `json:"best_epoch"`
	Dispatches map[string][]int     `json:"dispatches"`
	Counts     map[string]int       `json:"counts"`
}
// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if len(f.Epochs) == 0 {
		return nil, fmt.Errorf("fixture %s: no epochs", path)
	}
	return &f, nil
}
// #endregion fixture-loader
