package trainer

import (
	"context"
	"math"
	"math/rand"
)

// #region workload
// Workload supplies the batch outputs the loop feeds to its callbacks.
type Workload interface {
	Epochs() int
	Batches(epoch int) int
	Batch(ctx context.Context, epoch, batch int) (any, error)
}
// #endregion workload

// #region scripted
// Scripted replays fixed outputs: Outputs[epoch][batch]. Epochs may be empty.
type Scripted struct {
	Outputs [][]any
}

func (s Scripted) Epochs() int           { return len(s.Outputs) }
func (s Scripted) Batches(epoch int) int { return len(s.Outputs[epoch]) }

func (s Scripted) Batch(_ context.Context, epoch, batch int) (any, error) {
	return s.Outputs[epoch][batch], nil
}
// #endregion scripted

// #region synthetic
// Synthetic produces a noisy, decaying loss curve and a matching accuracy,
// as map[string]float64{"loss": ..., "acc": ...}. Output depends only on
// the seed.
type Synthetic struct {
	epochs  int
	batches int
	noise   float64
	rng     *rand.Rand
}

// NewSynthetic creates a deterministic workload.
func NewSynthetic(epochs, batchesPerEpoch int, noise float64, seed int64) *Synthetic {
	return &Synthetic{
		epochs:  epochs,
		batches: batchesPerEpoch,
		noise:   noise,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (s *Synthetic) Epochs() int     { return s.epochs }
func (s *Synthetic) Batches(int) int { return s.batches }

func (s *Synthetic) Batch(ctx context.Context, epoch, batch int) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	total := float64(s.epochs * s.batches)
	progress := float64(epoch*s.batches+batch) / math.Max(total, 1)

	loss := 2.0*math.Exp(-3*progress) + s.noise*s.rng.NormFloat64()
	loss = math.Max(loss, 1e-4)
	acc := math.Min(math.Max(1-loss/2, 0), 1)
	return map[string]float64{"loss": loss, "acc": acc}, nil
}
// #endregion synthetic
