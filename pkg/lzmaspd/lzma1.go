// Package lzmaspd decodes the two LZMA variants found inside stone image
// blocks: stock LZMA1 in the classic ".lzma alone" container, and a
// proprietary variant (LZMA_SPD) whose container differs but whose
// range-coded literal/match model is the same family of algorithm.
package lzmaspd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// DecodeAlone decodes a stock LZMA1 stream in the classic "alone" container:
// a 13-byte header (1 properties byte, 4-byte little-endian dictionary size,
// 8-byte little-endian uncompressed size) followed by the range-coded
// stream. budget bounds how many leading bytes of data are fed to the
// decoder — callers slice to 2x the declared raw size before calling, since
// the true compressed length is not separately recorded and the stream is
// self-terminating well before that bound.
func DecodeAlone(data []byte, budget int) ([]byte, error) {
	if budget > 0 && budget < len(data) {
		data = data[:budget]
	}
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("lzmaspd: alone-format header: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("lzmaspd: alone-format stream: %w", err)
	}
	return out, nil
}

// CompType classifies a sub-block's two-byte compression discriminator.
type CompType int

const (
	CompNone CompType = iota
	CompLZMASPD
	CompLZMA
)

// ClassifyCompType inspects the first two bytes of a sub-block and returns
// which decoder applies. A properties byte of 0x5D or 0x67 (both valid
// (lc,lp,pb) encodings lzma.exe has emitted across versions) with a zero
// second byte is stock LZMA1; 0x5A with a zero second byte is the
// proprietary variant.
func ClassifyCompType(data []byte) CompType {
	if len(data) < 2 {
		return CompNone
	}
	if (data[0] == 0x5D || data[0] == 0x67) && data[1] == 0x00 {
		return CompLZMA
	}
	if data[0] == 0x5A && data[1] == 0x00 {
		return CompLZMASPD
	}
	return CompNone
}
