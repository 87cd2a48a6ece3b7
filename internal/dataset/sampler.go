package dataset

import (
	"math/rand"
	"sort"
)

// bucket boundaries in frames; utterances are grouped by length so batch
// padding stays small
var bucketBoundaries = []int{50, 100, 200, 300, 400, 500, 600, 700, 800, 900}

// Sampler deals length-bucketed, rank-sharded batches of row indices. Every
// rank sees the same shuffled order for a given epoch and takes its own
// stride, so batch counts match across the group.
type Sampler struct {
	batchSize int
	rank      int
	world     int
	seed      int64
	buckets   [][]int
	total     int
}

// NewSampler groups rows by frame length. Rows shorter than the first
// boundary or longer than the last are dropped, matching the training
// segment bounds.
func NewSampler(lengths []int, batchSize, rank, world int, seed int64) *Sampler {
	buckets := make([][]int, len(bucketBoundaries)-1)
	total := 0
	for i, n := range lengths {
		b := sort.SearchInts(bucketBoundaries, n+1) - 1
		if b < 0 || b >= len(buckets) {
			continue
		}
		buckets[b] = append(buckets[b], i)
		total++
	}
	return &Sampler{
		batchSize: batchSize,
		rank:      rank,
		world:     world,
		seed:      seed,
		buckets:   buckets,
		total:     total,
	}
}

// Dropped reports how many rows fell outside the bucket range.
func (s *Sampler) Dropped(totalRows int) int { return totalRows - s.total }

// Batches returns this rank's batches for one epoch. The order reshuffles
// per epoch; the global sequence is padded up to a multiple of
// world*batchSize by wrapping, so every rank gets full batches.
func (s *Sampler) Batches(epoch int) [][]int {
	rng := rand.New(rand.NewSource(s.seed + int64(epoch)))

	var order []int
	for _, bucket := range s.buckets {
		idx := make([]int, len(bucket))
		copy(idx, bucket)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		order = append(order, idx...)
	}
	if len(order) == 0 {
		return nil
	}

	group := s.world * s.batchSize
	for len(order)%group != 0 {
		order = append(order, order[len(order)%s.total])
	}

	var mine []int
	for i := s.rank; i < len(order); i += s.world {
		mine = append(mine, order[i])
	}

	var batches [][]int
	for i := 0; i+s.batchSize <= len(mine); i += s.batchSize {
		batches = append(batches, mine[i:i+s.batchSize])
	}
	return batches
}

// BatchesPerEpoch is the per-rank batch count, constant across epochs.
func (s *Sampler) BatchesPerEpoch() int {
	if s.total == 0 {
		return 0
	}
	group := s.world * s.batchSize
	padded := (s.total + group - 1) / group * group
	return padded / group
}
