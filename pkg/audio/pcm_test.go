package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestPCMToFloat32Mono_AveragesChannels(t *testing.T) {
	// One stereo frame: L = 16384, R = -16384 — averages to 0.
	pcm := make([]byte, 4)
	left, right := int16(16384), int16(-16384)
	binary.LittleEndian.PutUint16(pcm[0:2], uint16(left))
	binary.LittleEndian.PutUint16(pcm[2:4], uint16(right))

	mono := pcmToFloat32Mono(pcm, 2)
	if len(mono) != 1 {
		t.Fatalf("len = %d, want 1", len(mono))
	}
	if math.Abs(float64(mono[0])) > 1e-6 {
		t.Errorf("mono[0] = %v, want 0", mono[0])
	}
}

func TestPCMToFloat32_Range(t *testing.T) {
	pcm := make([]byte, 4)
	lo, hi := int16(-32768), int16(32767)
	binary.LittleEndian.PutUint16(pcm[0:2], uint16(lo))
	binary.LittleEndian.PutUint16(pcm[2:4], uint16(hi))

	samples := pcmToFloat32(pcm)
	if samples[0] != -1.0 {
		t.Errorf("samples[0] = %v, want -1.0", samples[0])
	}
	if samples[1] < 0.999 || samples[1] > 1.0 {
		t.Errorf("samples[1] = %v, want ~1.0", samples[1])
	}
}

func TestFloat32ToPCM_Clamps(t *testing.T) {
	pcm := float32ToPCM([]float32{2.0, -2.0})
	hi := int16(binary.LittleEndian.Uint16(pcm[0:2]))
	lo := int16(binary.LittleEndian.Uint16(pcm[2:4]))
	if hi != 32767 {
		t.Errorf("clamped high = %d, want 32767", hi)
	}
	if lo != -32768 {
		t.Errorf("clamped low = %d, want -32768", lo)
	}
}

func TestFloat32PCM_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.5, 0.75}
	out := pcmToFloat32(float32ToPCM(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1.0/32767 {
			t.Errorf("out[%d] = %v, want ~%v", i, out[i], in[i])
		}
	}
}

func TestResampleMono_SameRateIsIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out, err := resampleMono(in, 16000, 16000)
	if err != nil {
		t.Fatalf("resampleMono: %v", err)
	}
	if len(out) != len(in) {
		t.Errorf("len = %d, want %d", len(out), len(in))
	}
}

func TestResampleMono_InvalidRates(t *testing.T) {
	if _, err := resampleMono([]float32{0.1}, 0, 16000); err == nil {
		t.Error("resampleMono accepted a zero source rate")
	}
}

func TestResampleMono_ShortClipIsNotSwallowed(t *testing.T) {
	// Shorter than the resampler's filter length: these samples sit in the
	// filter history until the final flush, so a missing flush would return
	// an empty slice here.
	in := make([]float32, 16)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * float64(i) / 16))
	}

	out, err := resampleMono(in, 48000, 16000)
	if err != nil {
		t.Fatalf("resampleMono: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("short clip resampled to an empty slice")
	}
}

func TestResampleMono_PreservesLength(t *testing.T) {
	const srcRate, dstRate = 48000, 16000
	in := make([]float32, srcRate/10) // 100 ms
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / srcRate))
	}

	out, err := resampleMono(in, srcRate, dstRate)
	if err != nil {
		t.Fatalf("resampleMono: %v", err)
	}
	want := len(in) * dstRate / srcRate
	// The flushed tail must bring the total to the full converted length;
	// allow a few samples of filter latency either way.
	if len(out) < want-16 || len(out) > want+16 {
		t.Errorf("len(out) = %d, want ~%d", len(out), want)
	}
}
