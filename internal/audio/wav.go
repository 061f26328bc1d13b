package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavPCMFormat = 1

// EncodeWAV wraps 16-bit little-endian PCM chunks into one WAV payload.
func EncodeWAV(chunks [][]byte, f Format) ([]byte, error) {
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", f.BitDepth)
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	samples := make([]int, 0, total/2)
	var carry []byte
	for _, c := range chunks {
		if len(carry) > 0 {
			c = append(carry, c...)
			carry = nil
		}
		for i := 0; i+1 < len(c); i += 2 {
			samples = append(samples, int(int16(binary.LittleEndian.Uint16(c[i:]))))
		}
		if len(c)%2 == 1 {
			carry = []byte{c[len(c)-1]}
		}
	}

	out := &writeBuffer{}
	enc := wav.NewEncoder(out, f.SampleRate, f.BitDepth, f.Channels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           samples,
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}
	return out.Bytes(), nil
}

// DecodeWAV reads a PCM WAV file and returns its samples as 16-bit
// little-endian PCM.
func DecodeWAV(r io.ReadSeeker) ([]byte, Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Format{}, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}

	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   16,
	}
	shift := int(dec.BitDepth) - 16

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		switch {
		case dec.BitDepth == 8:
			// 8-bit WAV 为无符号
			s = (s - 128) << 8
		case shift > 0:
			s >>= shift
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm, f, nil
}

// writeBuffer is an in-memory io.WriteSeeker for the WAV encoder, which
// seeks back to patch the header sizes.
type writeBuffer struct {
	data []byte
	pos  int
}

func (b *writeBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		if end > cap(b.data) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *writeBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

func (b *writeBuffer) Bytes() []byte {
	return b.data
}
