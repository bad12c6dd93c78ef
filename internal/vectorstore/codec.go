package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	suffixText   = "text"
	suffixFile   = "file"
	suffixVector = "vector"
)

// chunkKey is "{prefix}:{sourceId}:{index}".
func chunkKey(ns Namespace, sourceID string, index int) string {
	return ns.Prefix() + ":" + sourceID + ":" + strconv.Itoa(index)
}

// splitChunkKey recovers the source id and index from a chunk key. Source ids may contain ':'.
func splitChunkKey(ns Namespace, base string) (string, int, bool) {
	rest, ok := strings.CutPrefix(base, ns.Prefix()+":")
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 {
		return "", 0, false
	}
	idx, err := strconv.Atoi(rest[i+1:])
	if err != nil || idx < 0 {
		return "", 0, false
	}
	return rest[:i], idx, true
}

// encodeVector writes v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector payload of %d bytes is not a float32 sequence", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
