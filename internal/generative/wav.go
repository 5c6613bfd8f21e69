package generative

import (
	"bytes"
	"encoding/binary"
	"math"
)

const (
	wavSampleRate    = 8000
	wavBitsPerSample = 16
	wavChannels      = 1
)

// silentWAV encodes seconds of 16-bit mono PCM silence.
func silentWAV(seconds float64) []byte {
	samples := int(math.Round(seconds * wavSampleRate))
	blockAlign := wavChannels * wavBitsPerSample / 8
	dataSize := samples * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavChannels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(wavSampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(wavSampleRate*blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavBitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
