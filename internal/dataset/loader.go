package dataset

import (
	"fmt"
)

// Loader ties a dataset to its sampler and yields collated batches.
type Loader struct {
	ds      *Dataset
	sampler *Sampler
}

// NewLoader builds the per-rank batch source. It fails with ErrInsufficient
// when fewer than three batches per epoch remain after bucketing, which is
// too little signal to train on.
func NewLoader(rows []Row, hopLength, batchSize, rank, world int, seed int64) (*Loader, error) {
	ds := New(rows, hopLength)
	lengths := make([]int, ds.Len())
	for i := range lengths {
		n, err := ds.FrameLength(i)
		if err != nil {
			return nil, fmt.Errorf("stat row %d: %w", i, err)
		}
		lengths[i] = n
	}
	sampler := NewSampler(lengths, batchSize, rank, world, seed)
	if sampler.BatchesPerEpoch() < 3 {
		return nil, fmt.Errorf("%w: %d batches per epoch, need at least 3",
			ErrInsufficient, sampler.BatchesPerEpoch())
	}
	return &Loader{ds: ds, sampler: sampler}, nil
}

func (l *Loader) BatchesPerEpoch() int { return l.sampler.BatchesPerEpoch() }

// Epoch loads this rank's batches for one epoch, in the epoch's shuffled
// order.
func (l *Loader) Epoch(epoch int, fn func(batchIndex int, items []*Item) error) error {
	for bi, batch := range l.sampler.Batches(epoch) {
		items := make([]*Item, 0, len(batch))
		for _, idx := range batch {
			item, err := l.ds.Load(idx)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		if err := fn(bi, items); err != nil {
			return err
		}
	}
	return nil
}
