package audio

import "math"

const (
	// zeroCrossings is the half-width of the sinc kernel in zero crossings
	// of the lower of the two Nyquist frequencies.
	zeroCrossings = 16
	// rolloff pulls the cutoff slightly below Nyquist to leave room for the
	// window's transition band.
	rolloff = 0.945
	// kernelDensity is the number of table entries per input sample of
	// kernel distance.
	kernelDensity = 512
)

// Resample converts every channel to targetRate with a Blackman-windowed sinc
// interpolator. The output has exactly floor(frames * targetRate / rate) frames.
// A buffer already at targetRate is returned as-is.
func Resample(b *PCMBuffer, targetRate int) *PCMBuffer {
	if targetRate <= 0 || b.SampleRate == targetRate {
		return b
	}

	inFrames := b.FrameCount()
	outFrames := int(int64(inFrames) * int64(targetRate) / int64(b.SampleRate))

	ratio := float64(targetRate) / float64(b.SampleRate)
	// Downsampling narrows the passband to the output Nyquist.
	cutoff := rolloff * math.Min(1, ratio)
	halfWidth := float64(zeroCrossings) / cutoff
	step := float64(b.SampleRate) / float64(targetRate)

	table := newKernelTable(cutoff, halfWidth)
	out := &PCMBuffer{SampleRate: targetRate, Channels: make([][]float32, len(b.Channels))}
	for c, in := range b.Channels {
		out.Channels[c] = resampleChannel(in, outFrames, step, table)
	}
	return out
}

func resampleChannel(in []float32, outFrames int, step float64, table *kernelTable) []float32 {
	halfWidth := table.halfWidth
	out := make([]float32, outFrames)
	n := len(in)

	for i := range out {
		center := float64(i) * step
		lo := max(int(math.Ceil(center-halfWidth)), 0)
		hi := min(int(math.Floor(center+halfWidth)), n-1)

		var acc, norm float64
		for j := lo; j <= hi; j++ {
			w := table.at(center - float64(j))
			acc += float64(in[j]) * w
			norm += w
		}
		if norm != 0 {
			out[i] = float32(acc / norm)
		}
	}
	return out
}

// kernelTable holds the windowed sinc sampled on [0, halfWidth] and
// linearly interpolates between entries.
type kernelTable struct {
	values    []float64
	halfWidth float64
}

func newKernelTable(cutoff, halfWidth float64) *kernelTable {
	values := make([]float64, int(math.Ceil(halfWidth*kernelDensity))+2)
	for i := range values {
		values[i] = kernel(float64(i)/kernelDensity, cutoff, halfWidth)
	}
	return &kernelTable{values: values, halfWidth: halfWidth}
}

func (t *kernelTable) at(d float64) float64 {
	d = math.Abs(d)
	if d >= t.halfWidth {
		return 0
	}
	pos := d * kernelDensity
	i := int(pos)
	frac := pos - float64(i)
	return t.values[i] + frac*(t.values[i+1]-t.values[i])
}

// kernel evaluates the windowed sinc at distance d (in input samples).
func kernel(d, cutoff, halfWidth float64) float64 {
	x := d / halfWidth
	if x <= -1 || x >= 1 {
		return 0
	}
	return cutoff * sinc(cutoff*d) * blackman(x)
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman is the Blackman window centered on zero, defined on (-1, 1).
func blackman(x float64) float64 {
	return 0.42 + 0.5*math.Cos(math.Pi*x) + 0.08*math.Cos(2*math.Pi*x)
}
