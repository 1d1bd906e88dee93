package transcribe

import (
	"encoding/binary"
	"os"

	"github.com/google/renameio/v2"
)

// writeWAV wraps raw 16-bit mono PCM in a minimal RIFF container. The chunk
// files are transient; atomic writes keep a crashed worker from leaving a
// truncated WAV for the next attempt to trip over.
func writeWAV(path string, pcm []byte, sampleRate int) error {
	header := wavHeader(len(pcm), sampleRate)
	buf := make([]byte, 0, len(header)+len(pcm))
	buf = append(buf, header...)
	buf = append(buf, pcm...)
	return renameio.WriteFile(path, buf, os.FileMode(0o644))
}

func wavHeader(dataLen, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataLen))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], channels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h
}
