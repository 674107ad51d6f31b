package stone

import (
	"encoding/binary"
	"fmt"

	"github.com/unisoc-tools/bfltool/pkg/lzmaspd"
)

const capnMagic = 0x4E504143 // "CAPN" read little-endian, per original_source/stoned.py

// tblOffset reads the index-th little-endian u32 entry of a CAPN offset
// table.
func tblOffset(tbl []byte, index int) (uint32, error) {
	off := index * 4
	if off+4 > len(tbl) {
		return 0, fmt.Errorf("offset table entry %d out of range (table is %d bytes)", index, len(tbl))
	}
	return binary.LittleEndian.Uint32(tbl[off : off+4]), nil
}

// unpackBlock decompresses one COLB block's data. blkRawSize is the raw
// (uncompressed) size recorded in the block descriptor; the per-sub-block
// input budget is 2x that value, an overestimate guaranteed to contain the
// whole self-terminating stream.
func unpackBlock(blkData []byte, blkRawSize uint32) ([]byte, error) {
	if len(blkData) < 16 {
		return nil, fmt.Errorf("stone: block data shorter than CAPN header")
	}
	npacMagic := binary.LittleEndian.Uint32(blkData[0:4])
	compDataSize := binary.LittleEndian.Uint32(blkData[8:12])
	lzmaBlocksAmount := binary.LittleEndian.Uint32(blkData[12:16])

	var offsetTbl []byte
	if npacMagic == capnMagic {
		if int(compDataSize) > len(blkData) {
			return nil, fmt.Errorf("stone: CAPN compDataSize %d exceeds block length %d", compDataSize, len(blkData))
		}
		offsetTbl = blkData[compDataSize:]
	} else {
		lzmaBlocksAmount = 1
	}

	inBudget := int(blkRawSize) * 2
	dec := lzmaspd.NewDecoder()
	var out []byte

	for i := uint32(0); i < lzmaBlocksAmount; i++ {
		var dataOffset uint32
		if offsetTbl != nil {
			off, err := tblOffset(offsetTbl, int(i))
			if err != nil {
				return nil, fmt.Errorf("stone: %w", err)
			}
			dataOffset = off
		}
		if int(dataOffset) > len(blkData) {
			return nil, fmt.Errorf("stone: sub-block %d offset %d exceeds block length %d", i, dataOffset, len(blkData))
		}
		subBlock := blkData[dataOffset:]
		budget := inBudget
		if budget > len(subBlock) {
			budget = len(subBlock)
		}
		lzData := subBlock[:budget]

		switch lzmaspd.ClassifyCompType(lzData) {
		case lzmaspd.CompLZMA:
			chunk, err := lzmaspd.DecodeAlone(lzData, budget)
			if err != nil {
				return nil, fmt.Errorf("stone: sub-block %d: %w", i, err)
			}
			out = append(out, chunk...)
		case lzmaspd.CompLZMASPD:
			chunk, err := dec.Decode(lzData[2:])
			if err != nil {
				return nil, fmt.Errorf("stone: sub-block %d: %w", i, err)
			}
			out = append(out, chunk...)
		default:
			return nil, &Error{Kind: KindUnsupportedCompression, Cause: fmt.Errorf("discriminator % X", lzData[:min2(len(lzData), 2)])}
		}
	}
	return out, nil
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}
