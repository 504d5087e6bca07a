package capability

import (
	"encoding/binary"
	"errors"
	"io"
)

const wavHeaderSize = 44

// writeWAVHeader writes a canonical 16-bit PCM RIFF header for dataLen bytes
// of sample data.
func writeWAVHeader(w io.Writer, sampleRate, channels int, dataLen uint32) error {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	_, err := w.Write(header)
	return err
}

// finalizeWAV rewrites the header of an already written file once the data
// length is known.
func finalizeWAV(f io.WriteSeeker, sampleRate, channels int, dataLen int64) error {
	if dataLen > int64(^uint32(0))-36 {
		return errors.New("recording exceeds WAV size limit")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return writeWAVHeader(f, sampleRate, channels, uint32(dataLen))
}

// pcmDuration is the playback length of 16-bit PCM data in seconds
func pcmDuration(dataLen int64, sampleRate, channels int) float64 {
	bytesPerSecond := sampleRate * channels * 2
	if bytesPerSecond <= 0 {
		return 0
	}
	return float64(dataLen) / float64(bytesPerSecond)
}
