package bytecode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// FormatVersion is bumped whenever the encoded program layout changes.
const FormatVersion = 1

const programMagic = "LAYE"

// ErrFormat is returned for encoded data that is not a compatible program.
var ErrFormat = errors.New("bytecode: incompatible program encoding")

type programEnvelope struct {
	Magic   string   `cbor:"1,keyasint"`
	Version int      `cbor:"2,keyasint"`
	Program *Program `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil)
	})
)

// EncodeProgram serializes a program to canonical CBOR.
func EncodeProgram(p *Program) ([]byte, error) {
	if p == nil || p.Main == nil {
		return nil, fmt.Errorf("bytecode: encode: nil program")
	}
	return cborEncMode.Marshal(programEnvelope{Magic: programMagic, Version: FormatVersion, Program: p})
}

// DecodeProgram deserializes a program produced by EncodeProgram.
func DecodeProgram(data []byte) (*Program, error) {
	var env programEnvelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}
	if env.Magic != programMagic || env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: magic=%q version=%d", ErrFormat, env.Magic, env.Version)
	}
	if env.Program == nil || env.Program.Main == nil {
		return nil, fmt.Errorf("%w: missing main prototype", ErrFormat)
	}
	return env.Program, nil
}

// Compress applies zstd to an encoded program.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("bytecode: zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("bytecode: zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("bytecode: decompress: %w", err)
	}
	return out, nil
}

// MarshalProgram encodes and compresses p.
func MarshalProgram(p *Program) ([]byte, error) {
	raw, err := EncodeProgram(p)
	if err != nil {
		return nil, err
	}
	return Compress(raw)
}

// UnmarshalProgram reverses MarshalProgram.
func UnmarshalProgram(data []byte) (*Program, error) {
	raw, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	return DecodeProgram(raw)
}
