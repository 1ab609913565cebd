package audio

import (
	"encoding/binary"
	"testing"
)

func TestDecodeWAV_RoundTrip(t *testing.T) {
	pcm := sinePCM(1000, 44100, 2)
	wav := EncodeWAV(pcm, 44100, 2)

	got, rate, channels, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if rate != 44100 {
		t.Errorf("rate = %d, want 44100", rate)
	}
	if channels != 2 {
		t.Errorf("channels = %d, want 2", channels)
	}
	if len(got) != len(pcm) {
		t.Errorf("len(pcm) = %d, want %d", len(got), len(pcm))
	}
}

func TestDecodeWAV_PipedStreamSizes(t *testing.T) {
	// ffmpeg writing to a pipe leaves RIFF and data sizes as 0xFFFFFFFF.
	pcm := sinePCM(200, 16000, 1)
	wav := EncodeWAV(pcm, 16000, 1)
	binary.LittleEndian.PutUint32(wav[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	got, rate, channels, err := decodeWAV(wav)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("rate, channels = %d, %d, want 16000, 1", rate, channels)
	}
	if len(got) != len(pcm) {
		t.Errorf("len(pcm) = %d, want %d", len(got), len(pcm))
	}
}

func TestDecodeWAV_RejectsNonRIFF(t *testing.T) {
	if _, _, _, err := decodeWAV([]byte("OggS\x00\x00\x00\x00random")); err == nil {
		t.Error("decodeWAV accepted a non-RIFF stream")
	}
}

func TestDecodeWAV_RejectsFloatFormat(t *testing.T) {
	wav := EncodeWAV(sinePCM(10, 16000, 1), 16000, 1)
	// Patch the format tag to 3 (IEEE float).
	binary.LittleEndian.PutUint16(wav[20:22], 3)
	if _, _, _, err := decodeWAV(wav); err == nil {
		t.Error("decodeWAV accepted a non-PCM format tag")
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	pcm := sinePCM(50, 22050, 1)
	wav := EncodeWAV(pcm, 22050, 1)

	// Splice a LIST chunk between "fmt " and "data".
	list := make([]byte, 8+4)
	copy(list[0:4], "LIST")
	binary.LittleEndian.PutUint32(list[4:8], 4)
	copy(list[8:12], "INFO")

	spliced := append([]byte{}, wav[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, wav[36:]...)

	got, rate, _, err := decodeWAV(spliced)
	if err != nil {
		t.Fatalf("decodeWAV: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate = %d, want 22050", rate)
	}
	if len(got) != len(pcm) {
		t.Errorf("len(pcm) = %d, want %d", len(got), len(pcm))
	}
}

func TestWaveformWAV_Header(t *testing.T) {
	w := Waveform{Samples: make([]float32, 320), Rate: CanonicalRate}
	wav := w.WAV()

	if len(wav) != 44+320*2 {
		t.Fatalf("len = %d, want %d", len(wav), 44+320*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != CanonicalRate {
		t.Errorf("sample rate = %d, want %d", rate, CanonicalRate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
}
