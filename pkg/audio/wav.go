package audio

import (
	"encoding/binary"
	"fmt"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM streams
// produced by the decoder and consumed by the embedding model server.
const bitsPerSample = 16

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct
// inclusion in a multipart form upload.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// decodeWAV parses a RIFF/WAV stream and returns the raw PCM data, sample
// rate, and channel count. Only 16-bit PCM (format tag 1) is accepted.
//
// ffmpeg writing WAV to a pipe cannot seek back to patch chunk sizes, so the
// RIFF and data sizes may be 0 or 0xFFFFFFFF; both are treated as "extends
// to end of stream".
func decodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var (
		haveFmt bool
		bits    int
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if body+16 > len(data) {
				return nil, 0, 0, fmt.Errorf("truncated fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("unsupported WAV format tag %d (want PCM)", format)
			}
			if bits != bitsPerSample {
				return nil, 0, 0, fmt.Errorf("unsupported WAV bit depth %d (want %d)", bits, bitsPerSample)
			}
			if channels <= 0 || sampleRate <= 0 {
				return nil, 0, 0, fmt.Errorf("invalid WAV header: %d channels at %d Hz", channels, sampleRate)
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, 0, fmt.Errorf("WAV data chunk before fmt chunk")
			}
			end := body + size
			if size <= 0 || size == 0xFFFFFFFF || end > len(data) {
				end = len(data)
			}
			pcm = data[body:end]
			// Truncate any trailing odd byte.
			pcm = pcm[:len(pcm)/2*2]
			if len(pcm) == 0 {
				return nil, 0, 0, fmt.Errorf("empty WAV data chunk")
			}
			return pcm, sampleRate, channels, nil
		}

		if size <= 0 || size == 0xFFFFFFFF {
			break
		}
		// Chunks are word-aligned.
		off = body + size + size%2
	}

	return nil, 0, 0, fmt.Errorf("no WAV data chunk found")
}
