package stone

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// buildDirectory lays out a minimal TRAPGAMI header with the given section
// addresses (0xFFFFFFFF entries are "unused") at the given file offset.
func buildDirectory(addrs []uint32) []byte {
	if len(addrs) > directoryEntryCount {
		panic("too many addresses for fixture")
	}
	dir := make([]byte, directoryEntryCount*4)
	for i := range dir {
		dir[i] = 0xFF
	}
	for i, a := range addrs {
		binary.LittleEndian.PutUint32(dir[i*4:i*4+4], a)
	}
	out := append([]byte("TRAPGAMI"), dir...)
	return out
}

func TestStoneHeaderDiscoveryWithSecurePreamble(t *testing.T) {
	preamble := make([]byte, securePreambleLen)
	copy(preamble, securePreamble)

	// Section address 0x200 has no section data behind it: the header scan
	// and preamble offset resolve, and the error names the section base
	// 1024 + 0x200 = 1536.
	header := buildDirectory([]uint32{0x200})
	data := append(preamble, header...)

	_, err := Unpack(data)
	if err == nil {
		t.Fatalf("expected an error unpacking a directory with no real section data")
	}
	if !strings.Contains(err.Error(), "(base 1536)") {
		t.Fatalf("err = %v, want it to name section base 1536", err)
	}
}

func TestStoneHeaderMissing(t *testing.T) {
	data := bytes.Repeat([]byte{0x00}, 64)
	_, err := Unpack(data)
	if !IsStoneHeaderMissing(err) {
		t.Fatalf("Unpack with no TRAPGAMI: err=%v, want StoneHeaderMissing", err)
	}
}

func TestStoneRejectsTooShortFile(t *testing.T) {
	if _, err := Unpack([]byte{0x01, 0x02}); err == nil {
		t.Fatalf("expected error for file shorter than minimum length")
	}
}

func TestProtocolStationEmission(t *testing.T) {
	// Build a file where the lowest section address is 0x200: the ps
	// artifact must be exactly file[0:0x200]. The TRAPGAMI header sits at
	// offset 16 inside that prefix, and both sections are DRPS headers with
	// zero blocks, so ps.bin is the only artifact.
	data := make([]byte, 0x800+16)
	for i := 0; i < 0x200; i++ {
		data[i] = byte(i)
	}
	copy(data[16:], buildDirectory([]uint32{0x200, 0x800, 0xFFFFFFFF}))
	for _, addr := range []int{0x200, 0x800} {
		binary.LittleEndian.PutUint32(data[addr:addr+4], bzpMagicDRPS)
		binary.LittleEndian.PutUint32(data[addr+8:addr+12], 16) // blocksOffset; blocksAmount stays 0
	}

	artifacts, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Name != "ps.bin" {
		t.Fatalf("artifacts = %+v, want only ps.bin", artifacts)
	}
	if !bytes.Equal(artifacts[0].Data, data[:0x200]) {
		t.Fatalf("ps.bin is %d bytes, want file[0:0x200]", len(artifacts[0].Data))
	}
}

func TestUnpackSectionRejectsBadMagic(t *testing.T) {
	section := make([]byte, 16)
	binary.LittleEndian.PutUint32(section[0:4], 0xDEADBEEF)
	_, err := unpackSection(section)
	var se *Error
	if err == nil {
		t.Fatalf("expected invalid BZP header error")
	}
	if !errorsAsStoneError(err, &se) || se.Kind != KindInvalidBZPHeader {
		t.Fatalf("err = %v, want KindInvalidBZPHeader", err)
	}
}

func TestBlockFilenameMapping(t *testing.T) {
	cases := map[uint32]string{
		blockIDKernel: "kern.bin",
		blockIDUser:   "user.bin",
		blockIDRsrc:   "rsrc.bin",
		0x12345678:    "blk_12345678.bin",
	}
	for id, want := range cases {
		if got := blockFilename(id); got != want {
			t.Errorf("blockFilename(0x%X) = %q, want %q", id, got, want)
		}
	}
}

func TestUnpackDeterministic(t *testing.T) {
	section := make([]byte, 16)
	binary.LittleEndian.PutUint32(section[0:4], bzpMagicDRPS)
	binary.LittleEndian.PutUint32(section[8:12], 16) // blocksOffset
	binary.LittleEndian.PutUint32(section[12:16], 0) // blocksAmount=0: no blocks, deterministic empty result

	a1, err1 := unpackSection(section)
	a2, err2 := unpackSection(section)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v / %v", err1, err2)
	}
	if len(a1) != 0 || len(a2) != 0 {
		t.Fatalf("expected no artifacts for a zero-block section")
	}
}

func errorsAsStoneError(err error, target **Error) bool {
	se, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = se
	return true
}

// The constants and encoder below hand-build a real stock "lzma alone"
// stream (lc=3, lp=0, pb=2 — the properties byte 0x5D) so that
// pkg/lzmaspd.DecodeAlone, and so the real github.com/ulikunitz/xz/lzma
// decoder underneath it, decodes a genuine compressed sub-block rather than
// stopping at a deliberately-incomplete fixture. It only ever encodes
// literals (no matches), which is sufficient for a compliant "alone" stream
// whose header declares a known uncompressed size: no end-of-stream marker
// is then required, matching how ulikunitz/xz/lzma.NewReader reads such a
// stream. LZMA_SPD's own happy path has no equivalent fixture here: no real
// firmware sample or reference decoder is available to validate its
// container layout against (see DESIGN.md).
const (
	lzmaAloneProbBits = 11
	lzmaAloneProbMax  = 1 << lzmaAloneProbBits
	lzmaAloneProbInit = lzmaAloneProbMax / 2
	lzmaAloneMoveBits = 5
	lzmaAloneTopValue = 1 << 24
)

type lzmaAloneEncoder struct {
	low       uint64
	rng       uint32
	cache     byte
	cacheSize int64
	out       []byte
}

func newLZMAAloneEncoder() *lzmaAloneEncoder {
	return &lzmaAloneEncoder{rng: 0xFFFFFFFF, cache: 0, cacheSize: 1}
}

func (e *lzmaAloneEncoder) shiftLow() {
	if uint32(e.low>>32) != 0 || e.low < 0xFF000000 {
		temp := e.cache
		for {
			e.out = append(e.out, temp+byte(e.low>>32))
			temp = 0xFF
			e.cacheSize--
			if e.cacheSize == 0 {
				break
			}
		}
		e.cache = byte(e.low >> 24)
	}
	e.cacheSize++
	e.low = (e.low << 8) & 0xFFFFFFFF
}

func (e *lzmaAloneEncoder) encodeBit(prob *uint16, bit int) {
	bound := (e.rng >> lzmaAloneProbBits) * uint32(*prob)
	if bit == 0 {
		e.rng = bound
		*prob += (lzmaAloneProbMax - *prob) >> lzmaAloneMoveBits
	} else {
		e.low += uint64(bound)
		e.rng -= bound
		*prob -= *prob >> lzmaAloneMoveBits
	}
	for e.rng < lzmaAloneTopValue {
		e.rng <<= 8
		e.shiftLow()
	}
}

func (e *lzmaAloneEncoder) flush() []byte {
	for i := 0; i < 5; i++ {
		e.shiftLow()
	}
	return e.out
}

// encodeLZMA1LiteralAlone builds a 13-byte "alone" header followed by an
// all-literal range-coded body for plain.
func encodeLZMA1LiteralAlone(plain []byte) []byte {
	e := newLZMAAloneEncoder()
	isMatch0 := make([]uint16, 4) // pb=2 => 4 posStates; state stays 0 throughout an all-literal stream
	for i := range isMatch0 {
		isMatch0[i] = lzmaAloneProbInit
	}
	litProbs := make([]uint16, 8*0x300) // lc=3, lp=0 => 8 literal contexts
	for i := range litProbs {
		litProbs[i] = lzmaAloneProbInit
	}

	prevByte := byte(0)
	for pos, b := range plain {
		posState := pos & 3
		e.encodeBit(&isMatch0[posState], 0)
		probs := litProbs[int(prevByte>>5)*0x300:]
		symbol := 1
		for bit := 7; bit >= 0; bit-- {
			bv := int((b >> uint(bit)) & 1)
			e.encodeBit(&probs[symbol], bv)
			symbol = (symbol << 1) | bv
		}
		prevByte = b
	}
	body := e.flush()

	header := make([]byte, 13)
	header[0] = 0x5D // lc=3, lp=0, pb=2
	binary.LittleEndian.PutUint32(header[1:5], 0x00001000)
	binary.LittleEndian.PutUint64(header[5:13], uint64(len(plain)))
	return append(header, body...)
}

// TestUnpackDecompressesStockLZMABlock builds one complete, valid stone
// image end to end (directory, one DRPS section, one COLB block holding a
// real stock-LZMA1 sub-block with no CAPN layer) and asserts the
// decompressed artifact matches the original plaintext exactly.
func TestUnpackDecompressesStockLZMABlock(t *testing.T) {
	plain := []byte("the quick brown fox jumps over the lazy dog, 16 more bytes of filler to compress")
	compressed := encodeLZMA1LiteralAlone(plain)

	const (
		bzpHeaderLen = 16
		colbLen      = 20
	)
	colbDataOffset := uint32(bzpHeaderLen + colbLen)

	colb := make([]byte, colbLen)
	binary.LittleEndian.PutUint32(colb[0:4], colbMagic)
	binary.LittleEndian.PutUint32(colb[4:8], blockIDKernel)
	binary.LittleEndian.PutUint32(colb[8:12], colbDataOffset)
	binary.LittleEndian.PutUint32(colb[16:20], uint32(len(compressed)))

	section := make([]byte, bzpHeaderLen)
	binary.LittleEndian.PutUint32(section[0:4], bzpMagicDRPS)
	binary.LittleEndian.PutUint32(section[8:12], bzpHeaderLen) // blocksOffset
	binary.LittleEndian.PutUint32(section[12:16], 1)           // blocksAmount
	section = append(section, colb...)
	section = append(section, compressed...)

	prefix := make([]byte, 16)
	headerBlock := buildDirectory([]uint32{uint32(len(prefix) + 8 + directoryEntryCount*4)})

	data := append(append(append([]byte{}, prefix...), headerBlock...), section...)

	artifacts, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	var kern *Artifact
	for i := range artifacts {
		if artifacts[i].Name == "kern.bin" {
			kern = &artifacts[i]
		}
	}
	if kern == nil {
		t.Fatalf("no kern.bin artifact among %d artifacts", len(artifacts))
	}
	if !bytes.Equal(kern.Data, plain) {
		t.Fatalf("kern.bin = %q, want %q", kern.Data, plain)
	}
}
