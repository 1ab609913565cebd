package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// resampleMono converts mono samples from srcRate to dstRate using the
// go-audio-resampling band-limited resampler. If the rates already match,
// the input is returned unchanged.
func resampleMono(samples []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate == dstRate || len(samples) == 0 {
		return samples, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", srcRate, dstRate)
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: %w", srcRate, dstRate, err)
	}
	// The resampler is streaming: Process holds back the filter history, so
	// the tail of the signal only comes out on Flush. Without it short clips
	// resample to nothing and every clip loses its last few milliseconds.
	tail, err := rs.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample %d -> %d: flush: %w", srcRate, dstRate, err)
	}
	output = append(output, tail...)

	out := make([]float32, len(output))
	for i, s := range output {
		switch {
		case s > 1.0:
			out[i] = 1.0
		case s < -1.0:
			out[i] = -1.0
		default:
			out[i] = float32(s)
		}
	}
	return out, nil
}
