package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/slim-elephant/ultimate-rvc-mac/internal/config"
)

// Vocoders lists the generator variants the registry can build. Both share
// the reference synthesizer topology; the id is carried into snapshots for
// deployment-side dispatch.
var Vocoders = map[string]bool{
	"hifigan": true,
	"refresh": true,
}

const discPeriodCount = 5

var discPeriods = [discPeriodCount]int{2, 3, 5, 7, 11}

const discFeatDim = 4

// NewGenerator builds the reference synthesizer for a vocoder id.
func NewGenerator(cfg config.ModelConfig, sampleRate, speakers int, vocoder string, seed int64) (Generator, error) {
	if !Vocoders[vocoder] {
		return nil, fmt.Errorf("unknown vocoder %q", vocoder)
	}
	if speakers < 1 {
		speakers = 1
	}
	g := &refGenerator{
		embDim:      cfg.EmbeddingDim,
		segmentSize: cfg.SegmentSize,
		hop:         cfg.HopLength,
		sampleRate:  sampleRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
	g.params = []*Parameter{
		newParam("enc.weight", cfg.EmbeddingDim, seed),
		newParam("pitch.table", 256, seed+1),
		newParam("spk.table", speakers, seed+2),
		newParam("dec.weight", 3, seed+3),
	}
	return g, nil
}

// NewDiscriminator builds the reference multi-period discriminator.
func NewDiscriminator(seed int64) Discriminator {
	d := &refDiscriminator{}
	for i, p := range discPeriods {
		d.params = append(d.params,
			newParam(fmt.Sprintf("period%d.weight", p), discFeatDim, seed+int64(i)))
	}
	return d
}

func newParam(name string, n int, seed int64) *Parameter {
	rng := rand.New(rand.NewSource(seed))
	p := &Parameter{
		Name:  name,
		Value: make([]float64, n),
		Grad:  make([]float64, n),
	}
	scale := 1.0 / math.Sqrt(float64(n))
	for i := range p.Value {
		p.Value[i] = rng.NormFloat64() * scale
	}
	return p
}

type paramSet []*Parameter

func (ps paramSet) StateDict() State {
	s := make(State, len(ps))
	for _, p := range ps {
		vals := make([]float64, len(p.Value))
		copy(vals, p.Value)
		s[p.Name] = vals
	}
	return s
}

func (ps paramSet) LoadStateDict(s State) error {
	for _, p := range ps {
		vals, ok := s[p.Name]
		if !ok {
			return fmt.Errorf("state is missing parameter %q", p.Name)
		}
		if len(vals) != len(p.Value) {
			return fmt.Errorf("parameter %q shape mismatch: model %d, state %d", p.Name, len(p.Value), len(vals))
		}
		copy(p.Value, vals)
	}
	return nil
}

func (ps paramSet) ZeroGrad() {
	for _, p := range ps {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// refGenerator is a compact source-filter synthesizer: a content projection
// drives the filter, the pitch curve drives a harmonic source, a speaker
// gain scales the mix.
type refGenerator struct {
	embDim      int
	segmentSize int
	hop         int
	sampleRate  int
	params      paramSet
	rng         *rand.Rand

	// caches from the last Forward, consumed by Backward
	avgEmb   []float64
	binHits  []float64
	spkHits  []float64
	avgMix   [3]float64
	lastSize int
}

func (g *refGenerator) StateDict() State            { return g.params.StateDict() }
func (g *refGenerator) LoadStateDict(s State) error { return g.params.LoadStateDict(s) }
func (g *refGenerator) Parameters() []*Parameter    { return g.params }
func (g *refGenerator) ZeroGrad()                   { g.params.ZeroGrad() }

func (g *refGenerator) param(name string) *Parameter {
	for _, p := range g.params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (g *refGenerator) Forward(b *Batch) (*GenOutput, error) {
	if len(b.Phone) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	segFrames := g.segmentSize / g.hop

	out := &GenOutput{
		Waveform: make([][]float64, len(b.Phone)),
		SliceIDs: make([]int, len(b.Phone)),
		Latent: Latent{
			ZP:    make([][]float64, len(b.Phone)),
			LogsQ: make([][]float64, len(b.Phone)),
			MP:    make([][]float64, len(b.Phone)),
			LogsP: make([][]float64, len(b.Phone)),
			Mask:  make([][]float64, len(b.Phone)),
		},
	}

	g.avgEmb = make([]float64, g.embDim)
	g.binHits = make([]float64, 256)
	g.spkHits = make([]float64, len(g.param("spk.table").Value))
	g.avgMix = [3]float64{}
	g.lastSize = len(b.Phone)

	enc := g.param("enc.weight").Value
	table := g.param("pitch.table").Value
	spk := g.param("spk.table").Value
	dec := g.param("dec.weight").Value

	for i := range b.Phone {
		frames := b.PhoneLengths[i]
		start := 0
		if frames > segFrames {
			start = g.rng.Intn(frames - segFrames + 1)
		}
		out.SliceIDs[i] = start

		wave := make([]float64, g.segmentSize)
		zp := make([]float64, segFrames)
		logsq := make([]float64, segFrames)
		mp := make([]float64, segFrames)
		logsp := make([]float64, segFrames)
		mask := make([]float64, segFrames)

		sid := 0
		if i < len(b.SID) && b.SID[i] < len(spk) {
			sid = b.SID[i]
		}
		gain := spk[sid]
		g.spkHits[sid]++

		phase := 0.0
		for t := 0; t < g.segmentSize; t++ {
			frame := start + t/g.hop
			if frame >= frames {
				frame = frames - 1
			}

			content := 0.0
			emb := b.Phone[i][frame]
			for d := 0; d < g.embDim && d < len(emb); d++ {
				content += emb[d] * enc[d]
			}
			content /= float64(g.embDim)

			f0 := b.PitchF[i][frame]
			bin := int(b.Pitch[i][frame])
			if bin < 0 {
				bin = 0
			} else if bin > 255 {
				bin = 255
			}

			harmonic := 0.0
			if f0 > 0 {
				phase += 2 * math.Pi * f0 / float64(g.sampleRate)
				harmonic = math.Sin(phase) * table[bin]
			}

			wave[t] = math.Tanh(dec[0]*content + dec[1]*harmonic + dec[2]*gain)

			if t%g.hop == 0 {
				fi := t / g.hop
				zp[fi] = content + 0.1*harmonic
				logsq[fi] = -1 + 0.05*content
				mp[fi] = content
				logsp[fi] = -1.0
				mask[fi] = 1
				for d := 0; d < g.embDim && d < len(emb); d++ {
					g.avgEmb[d] += emb[d]
				}
				g.binHits[bin]++
			}
			g.avgMix[0] += content
			g.avgMix[1] += harmonic
			g.avgMix[2] += gain
		}

		out.Waveform[i] = wave
		out.Latent.ZP[i] = zp
		out.Latent.LogsQ[i] = logsq
		out.Latent.MP[i] = mp
		out.Latent.LogsP[i] = logsp
		out.Latent.Mask[i] = mask
	}

	norm := float64(len(b.Phone) * g.segmentSize)
	for d := range g.avgEmb {
		g.avgEmb[d] /= float64(len(b.Phone) * (g.segmentSize / g.hop))
	}
	for k := range g.avgMix {
		g.avgMix[k] /= norm
	}

	return out, nil
}

func (g *refGenerator) Backward(loss float64) {
	if g.lastSize == 0 {
		return
	}
	enc := g.param("enc.weight")
	for d := range enc.Grad {
		enc.Grad[d] += loss * g.avgEmb[d]
	}
	table := g.param("pitch.table")
	total := 0.0
	for _, h := range g.binHits {
		total += h
	}
	if total > 0 {
		for b := range table.Grad {
			table.Grad[b] += loss * g.binHits[b] / total
		}
	}
	spk := g.param("spk.table")
	for s := range spk.Grad {
		spk.Grad[s] += loss * g.spkHits[s] / float64(g.lastSize)
	}
	dec := g.param("dec.weight")
	for k := range dec.Grad {
		dec.Grad[k] += loss * g.avgMix[k]
	}
}

func (g *refGenerator) Infer(b *Batch) ([]float64, error) {
	if len(b.Phone) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	frames := b.PhoneLengths[0]
	enc := g.param("enc.weight").Value
	table := g.param("pitch.table").Value
	spk := g.param("spk.table").Value
	dec := g.param("dec.weight").Value

	sid := 0
	if len(b.SID) > 0 && b.SID[0] < len(spk) {
		sid = b.SID[0]
	}

	wave := make([]float64, frames*g.hop)
	phase := 0.0
	for t := range wave {
		frame := t / g.hop
		emb := b.Phone[0][frame]
		content := 0.0
		for d := 0; d < g.embDim && d < len(emb); d++ {
			content += emb[d] * enc[d]
		}
		content /= float64(g.embDim)

		f0 := b.PitchF[0][frame]
		harmonic := 0.0
		if f0 > 0 {
			phase += 2 * math.Pi * f0 / float64(g.sampleRate)
			bin := int(b.Pitch[0][frame])
			if bin < 0 {
				bin = 0
			} else if bin > 255 {
				bin = 255
			}
			harmonic = math.Sin(phase) * table[bin]
		}
		wave[t] = math.Tanh(dec[0]*content + dec[1]*harmonic + dec[2]*spk[sid])
	}
	return wave, nil
}

// refDiscriminator scores waveforms over several strides, one parameter
// vector per period, with window statistics as feature maps.
type refDiscriminator struct {
	params paramSet

	avgFeatReal [][]float64
	avgFeatGen  [][]float64
	lastCount   int
}

func (d *refDiscriminator) StateDict() State            { return d.params.StateDict() }
func (d *refDiscriminator) LoadStateDict(s State) error { return d.params.LoadStateDict(s) }
func (d *refDiscriminator) Parameters() []*Parameter    { return d.params }
func (d *refDiscriminator) ZeroGrad()                   { d.params.ZeroGrad() }

func windowFeatures(window []float64) []float64 {
	var mean, absMean, sq, zc float64
	for i, v := range window {
		mean += v
		absMean += math.Abs(v)
		sq += v * v
		if i > 0 && (v >= 0) != (window[i-1] >= 0) {
			zc++
		}
	}
	n := float64(len(window))
	return []float64{mean / n, absMean / n, math.Sqrt(sq / n), zc / n}
}

func (d *refDiscriminator) scoreOne(wave []float64) ([][]float64, [][][]float64, [][]float64) {
	scores := make([][]float64, discPeriodCount)
	fmaps := make([][][]float64, discPeriodCount)
	avgFeat := make([][]float64, discPeriodCount)

	for si, period := range discPeriods {
		weight := d.params[si].Value
		windowLen := period * 64
		if windowLen > len(wave) {
			windowLen = len(wave)
		}
		var scaleScores []float64
		var scaleFmap [][]float64
		avg := make([]float64, discFeatDim)
		for start := 0; start+windowLen <= len(wave); start += windowLen {
			feats := windowFeatures(wave[start : start+windowLen])
			score := 0.0
			for k := range feats {
				score += feats[k] * weight[k]
				avg[k] += feats[k]
			}
			scaleScores = append(scaleScores, score)
			scaleFmap = append(scaleFmap, feats)
		}
		if n := float64(len(scaleScores)); n > 0 {
			for k := range avg {
				avg[k] /= n
			}
		}
		scores[si] = scaleScores
		fmaps[si] = scaleFmap
		avgFeat[si] = avg
	}
	return scores, fmaps, avgFeat
}

func (d *refDiscriminator) Forward(real, generated [][]float64) (*DiscOutput, error) {
	if len(real) != len(generated) {
		return nil, fmt.Errorf("real/generated batch size mismatch: %d vs %d", len(real), len(generated))
	}
	out := &DiscOutput{
		ScoresReal: make([][]float64, discPeriodCount),
		ScoresGen:  make([][]float64, discPeriodCount),
		FmapReal:   make([][][]float64, discPeriodCount),
		FmapGen:    make([][][]float64, discPeriodCount),
	}
	d.avgFeatReal = make([][]float64, discPeriodCount)
	d.avgFeatGen = make([][]float64, discPeriodCount)
	for si := range d.avgFeatReal {
		d.avgFeatReal[si] = make([]float64, discFeatDim)
		d.avgFeatGen[si] = make([]float64, discFeatDim)
	}
	d.lastCount = len(real)

	for i := range real {
		sr, fr, ar := d.scoreOne(real[i])
		sg, fg, ag := d.scoreOne(generated[i])
		for si := 0; si < discPeriodCount; si++ {
			out.ScoresReal[si] = append(out.ScoresReal[si], sr[si]...)
			out.ScoresGen[si] = append(out.ScoresGen[si], sg[si]...)
			out.FmapReal[si] = append(out.FmapReal[si], fr[si]...)
			out.FmapGen[si] = append(out.FmapGen[si], fg[si]...)
			for k := 0; k < discFeatDim; k++ {
				d.avgFeatReal[si][k] += ar[si][k] / float64(len(real))
				d.avgFeatGen[si][k] += ag[si][k] / float64(len(real))
			}
		}
	}
	return out, nil
}

func (d *refDiscriminator) Backward(loss float64) {
	if d.lastCount == 0 {
		return
	}
	for si, p := range d.params {
		for k := range p.Grad {
			p.Grad[k] += loss * (d.avgFeatReal[si][k] - d.avgFeatGen[si][k])
		}
	}
}
