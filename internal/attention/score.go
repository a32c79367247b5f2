package attention

import (
	"math"

	"github.com/born-ml/fusedattn/internal/gemm"
	"github.com/born-ml/fusedattn/internal/parallel"
	"github.com/born-ml/fusedattn/internal/tensor"
)

// maskFilterValue is added to the raw score of a masked position before
// softmax. Finite on purpose: a fully masked row still softmaxes to a
// well-defined distribution instead of NaN.
const maskFilterValue = float32(-10000)

// ScoreContext hands the projected activations and the normalized call
// shape to the score engine. Q, K and V use [batch, heads, rows,
// head_size] layout; K and V carry TargetSequenceLength rows (the
// past rows live in Past until the engine concatenates them).
type ScoreContext struct {
	Q, K, V []float32
	Params  Params

	Unidirectional bool
	Past           *tensor.RawTensor
	ExtraAddQK     *tensor.RawTensor

	Output  *tensor.RawTensor // [batch, seq, hidden_v]
	Present *tensor.RawTensor // nil when the slot is unbound

	Pool parallel.Config
}

// Scorer consumes Q/K/V and produces the softmax-weighted output and,
// when bound, the present state. Implementations are black boxes to the
// rest of the operator.
type Scorer interface {
	Apply(sc *ScoreContext) error
}

// defaultScorer is the built-in masked-softmax score engine.
type defaultScorer struct{}

func (defaultScorer) Apply(sc *ScoreContext) error {
	p := sc.Params
	batch, heads := p.BatchSize, p.NumHeads
	seq := p.SequenceLength
	kRows := p.TargetSequenceLength
	total := p.TotalSequenceLength
	pastLen := p.PastSequenceLength
	headQ, headV := p.HeadSizeQ(), p.HeadSizeV()
	scale := float32(1 / math.Sqrt(float64(headQ)))

	// With a bound present slot, past and new K/V are concatenated there
	// and scoring reads the concatenation; otherwise K/V are read as
	// projected (total == kRows, since past implies a present binding).
	kSrc, vSrc := sc.K, sc.V
	kvRows := kRows
	if sc.Present != nil {
		if p.HiddenK != p.HiddenV {
			panic("attention: present state requires equal K and V head sizes")
		}
		half := concatPresent(sc, kRows)
		kSrc, vSrc = sc.Present.AsFloat32()[:half], sc.Present.AsFloat32()[half:]
		kvRows = pastLen + kRows
	}
	if kvRows != total {
		panic("attention: key rows disagree with total sequence length")
	}

	var maskData []int32
	if p.Mask.Kind != MaskNone {
		maskData = p.Mask.Index.AsInt32()
	}
	var extraData []float32
	if sc.ExtraAddQK != nil {
		extraData = sc.ExtraAddQK.AsFloat32()
	}
	outData := sc.Output.AsFloat32()

	cost := float64(seq) * float64(total) * float64(headQ+headV)
	parallel.ForCost(batch*heads, cost, func(u int) {
		b, n := u/heads, u%heads

		scores := make([]float32, seq*total)
		qBlock := sc.Q[(b*heads+n)*seq*headQ:]
		kBlock := kSrc[(b*heads+n)*total*headQ:]
		gemm.Gemm(false, true, seq, total, headQ, scale,
			qBlock, headQ, kBlock, headQ, 0, scores, total)

		adjustScores(scores, p, sc.Unidirectional, maskData, extraData, b, n)
		softmaxRows(scores, seq, total)

		context := make([]float32, seq*headV)
		vBlock := vSrc[(b*heads+n)*total*headV:]
		gemm.Gemm(false, false, seq, headV, total, 1,
			scores, total, vBlock, headV, 0, context, headV)

		// Transpose [batch, heads, seq, headV] rows into the
		// [batch, seq, heads*headV] output.
		for i := 0; i < seq; i++ {
			dst := outData[(b*seq+i)*p.HiddenV+n*headV:]
			copy(dst[:headV], context[i*headV:])
		}
	}, sc.Pool)

	return nil
}

// concatPresent fills the present tensor with past K/V followed by the
// newly projected K/V and returns the element length of one of its two
// planes.
func concatPresent(sc *ScoreContext, kRows int) int {
	p := sc.Params
	batch, heads := p.BatchSize, p.NumHeads
	head := p.HeadSizeK()
	pastLen := p.PastSequenceLength
	total := pastLen + kRows

	pres := sc.Present.AsFloat32()
	plane := batch * heads * total * head
	var pastData []float32
	if sc.Past != nil {
		pastData = sc.Past.AsFloat32()
	}

	for kv := 0; kv < 2; kv++ {
		src := sc.K
		if kv == 1 {
			src = sc.V
		}
		for b := 0; b < batch; b++ {
			for n := 0; n < heads; n++ {
				block := b*heads + n
				dst := pres[kv*plane+block*total*head:]
				if pastLen > 0 {
					copy(dst[:pastLen*head], pastData[(kv*batch*heads+block)*pastLen*head:])
				}
				copy(dst[pastLen*head:total*head], src[block*kRows*head:(block+1)*kRows*head])
			}
		}
	}
	return plane
}

// adjustScores applies the resolved mask variant, the causal constraint
// and the extra additive bias to one head's raw S x T score block.
func adjustScores(scores []float32, p Params, causal bool, maskData []int32, extraData []float32, b, n int) {
	seq, total := p.SequenceLength, p.TotalSequenceLength
	pastLen := p.PastSequenceLength

	// Per-batch window for the rank-1 variants.
	start, end := 0, total
	switch p.Mask.Kind {
	case MaskPerBatch:
		end = int(maskData[b])
	case MaskPerBatchPair:
		end = int(maskData[b])
		start = int(maskData[p.BatchSize+b])
	}

	var maxLen int
	if p.Mask.Kind == MaskSquareMax {
		maxLen = p.Mask.Index.Shape()[2]
	}

	for i := 0; i < seq; i++ {
		row := scores[i*total:]
		for j := 0; j < total; j++ {
			masked := false
			switch p.Mask.Kind {
			case MaskPerBatch, MaskPerBatchPair:
				masked = j < start || j >= end
			case MaskBatchTotal:
				masked = maskData[b*total+j] == 0
			case MaskBatchSeqTotal:
				masked = maskData[(b*seq+i)*total+j] == 0
			case MaskSquareMax:
				masked = maskData[b*maxLen*maxLen+(pastLen+i)*maxLen+j] == 0
			}
			if causal && j > pastLen+i {
				masked = true
			}
			if masked {
				row[j] += maskFilterValue
			}
			if extraData != nil {
				row[j] += extraData[((b*p.NumHeads+n)*seq+i)*seq+j]
			}
		}
	}
}

// softmaxRows normalizes each length-n row of a m x n block in place.
func softmaxRows(block []float32, m, n int) {
	for i := 0; i < m; i++ {
		row := block[i*n : (i+1)*n]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		sum := float32(0)
		for j, v := range row {
			e := float32(math.Exp(float64(v - maxVal)))
			row[j] = e
			sum += e
		}
		inv := 1 / sum
		for j := range row {
			row[j] *= inv
		}
	}
}
