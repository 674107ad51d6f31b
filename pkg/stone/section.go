package stone

import (
	"encoding/binary"
	"fmt"
)

const (
	bzpMagicDRPS = 0x53505244 // "DRPS" little-endian
	bzpMagicRRPS = 0x53505252 // "RRPS" little-endian
	colbMagic    = 0x424C4F43 // "COLB" little-endian

	blockIDKernel = 0x494D4147 // "GAMI"
	blockIDUser   = 0x75736572 // "resu"
	blockIDRsrc   = 0x4F736572 // "resO"
)

// blockFilename maps a block descriptor's blkId to its conventional output
// name, falling back to a hex-named file for anything unrecognized.
func blockFilename(blkID uint32) string {
	switch blkID {
	case blockIDKernel:
		return "kern.bin"
	case blockIDUser:
		return "user.bin"
	case blockIDRsrc:
		return "rsrc.bin"
	default:
		return fmt.Sprintf("blk_%X.bin", blkID)
	}
}

// unpackSection validates a BZP section header, then unpacks every COLB
// block descriptor it contains, returning one artifact per block.
func unpackSection(section []byte) ([]Artifact, error) {
	if len(section) < 16 {
		return nil, &Error{Kind: KindInvalidBZPHeader, Cause: fmt.Errorf("section shorter than BZP header")}
	}
	magic := binary.LittleEndian.Uint32(section[0:4])
	if magic != bzpMagicDRPS && magic != bzpMagicRRPS {
		return nil, &Error{Kind: KindInvalidBZPHeader, Cause: fmt.Errorf("magic 0x%X", magic)}
	}
	blocksOffset := binary.LittleEndian.Uint32(section[8:12])
	blocksAmount := binary.LittleEndian.Uint32(section[12:16])

	var artifacts []Artifact
	for i := uint32(0); i < blocksAmount; i++ {
		hdrStart := blocksOffset + i*20
		if int(hdrStart)+20 > len(section) {
			return nil, &Error{Kind: KindInvalidBlockHeader, Cause: fmt.Errorf("block %d header out of range", i)}
		}
		hdr := section[hdrStart : hdrStart+20]
		blkMagic := binary.LittleEndian.Uint32(hdr[0:4])
		if blkMagic != colbMagic {
			return nil, &Error{Kind: KindInvalidBlockHeader, Cause: fmt.Errorf("block %d magic 0x%X", i, blkMagic)}
		}
		blkID := binary.LittleEndian.Uint32(hdr[4:8])
		blkDataOffset := binary.LittleEndian.Uint32(hdr[8:12])
		blkRawSize := binary.LittleEndian.Uint32(hdr[16:20])

		if int(blkDataOffset) > len(section) {
			return nil, &Error{Kind: KindInvalidBlockHeader, Cause: fmt.Errorf("block %d data offset %d exceeds section length %d", i, blkDataOffset, len(section))}
		}
		data, err := unpackBlock(section[blkDataOffset:], blkRawSize)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, Artifact{Name: blockFilename(blkID), Data: data})
	}
	return artifacts, nil
}
