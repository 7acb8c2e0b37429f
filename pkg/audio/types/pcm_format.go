package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

type PCMFormat uint

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatU8
	PCMFormatS16LE
	PCMFormatS16BE
	PCMFormatS24LE
	PCMFormatS24BE
	PCMFormatS32LE
	PCMFormatS32BE
	PCMFormatS64LE
	PCMFormatS64BE
	PCMFormatFloat32LE
	PCMFormatFloat32BE
	PCMFormatFloat64LE
	PCMFormatFloat64BE
	EndOfPCMFormat
)

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "<undefined>"
	case PCMFormatU8:
		return "u8"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatS16BE:
		return "s16be"
	case PCMFormatS24LE:
		return "s24le"
	case PCMFormatS24BE:
		return "s24be"
	case PCMFormatS32LE:
		return "s32le"
	case PCMFormatS32BE:
		return "s32be"
	case PCMFormatS64LE:
		return "s64le"
	case PCMFormatS64BE:
		return "s64be"
	case PCMFormatFloat32LE:
		return "f32le"
	case PCMFormatFloat32BE:
		return "f32be"
	case PCMFormatFloat64LE:
		return "f64le"
	case PCMFormatFloat64BE:
		return "f64be"
	default:
		return fmt.Sprintf("<unknown_%d>", uint(f))
	}
}

// Size returns the size of a single sample of a single channel in bytes.
func (f PCMFormat) Size() uint {
	switch f {
	case PCMFormatU8:
		return 1
	case PCMFormatS16LE, PCMFormatS16BE:
		return 2
	case PCMFormatS24LE, PCMFormatS24BE:
		return 3
	case PCMFormatS32LE, PCMFormatS32BE, PCMFormatFloat32LE, PCMFormatFloat32BE:
		return 4
	case PCMFormatS64LE, PCMFormatS64BE, PCMFormatFloat64LE, PCMFormatFloat64BE:
		return 8
	default:
		return 0
	}
}

// Float64 decodes one sample from the beginning of p and normalizes
// it to the [-1, 1] range. Integer samples are promoted before any
// arithmetic, so no intermediate product can overflow.
func (f PCMFormat) Float64(p []byte) float64 {
	switch f {
	case PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / (1 << 15)
	case PCMFormatS16BE:
		return float64(int16(binary.BigEndian.Uint16(p))) / (1 << 15)
	case PCMFormatS24LE:
		return float64(signExtend24(uint32(p[0])|uint32(p[1])<<8|uint32(p[2])<<16)) / (1 << 23)
	case PCMFormatS24BE:
		return float64(signExtend24(uint32(p[2])|uint32(p[1])<<8|uint32(p[0])<<16)) / (1 << 23)
	case PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / (1 << 31)
	case PCMFormatS32BE:
		return float64(int32(binary.BigEndian.Uint32(p))) / (1 << 31)
	case PCMFormatS64LE:
		return float64(int64(binary.LittleEndian.Uint64(p))) / (1 << 63)
	case PCMFormatS64BE:
		return float64(int64(binary.BigEndian.Uint64(p))) / (1 << 63)
	case PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case PCMFormatFloat32BE:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	case PCMFormatFloat64BE:
		return math.Float64frombits(binary.BigEndian.Uint64(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

// PutFloat64 encodes a normalized sample into the beginning of p.
func (f PCMFormat) PutFloat64(p []byte, v float64) {
	switch f {
	case PCMFormatU8:
		p[0] = byte(clamp(math.Round(v*128+128), 0, 255))
	case PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(clamp(math.Round(v*(1<<15)), math.MinInt16, math.MaxInt16))))
	case PCMFormatS16BE:
		binary.BigEndian.PutUint16(p, uint16(int16(clamp(math.Round(v*(1<<15)), math.MinInt16, math.MaxInt16))))
	case PCMFormatS24LE:
		val := int32(clamp(math.Round(v*(1<<23)), -(1 << 23), 1<<23-1))
		p[0], p[1], p[2] = byte(val), byte(val>>8), byte(val>>16)
	case PCMFormatS24BE:
		val := int32(clamp(math.Round(v*(1<<23)), -(1 << 23), 1<<23-1))
		p[0], p[1], p[2] = byte(val>>16), byte(val>>8), byte(val)
	case PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(clamp(math.Round(v*(1<<31)), math.MinInt32, math.MaxInt32))))
	case PCMFormatS32BE:
		binary.BigEndian.PutUint32(p, uint32(int32(clamp(math.Round(v*(1<<31)), math.MinInt32, math.MaxInt32))))
	case PCMFormatS64LE:
		binary.LittleEndian.PutUint64(p, uint64(int64(clamp(math.Round(v*(1<<63)), math.MinInt64, math.MaxInt64))))
	case PCMFormatS64BE:
		binary.BigEndian.PutUint64(p, uint64(int64(clamp(math.Round(v*(1<<63)), math.MinInt64, math.MaxInt64))))
	case PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case PCMFormatFloat32BE:
		binary.BigEndian.PutUint32(p, math.Float32bits(float32(v)))
	case PCMFormatFloat64LE:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	case PCMFormatFloat64BE:
		binary.BigEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func signExtend24(v uint32) int32 {
	if v&0x800000 != 0 {
		v |= 0xff000000
	}
	return int32(v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
