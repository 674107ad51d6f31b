// Package session drives the BFL handshake, FDL bootstrap and flash
// read/erase/write procedure on top of pkg/frame and pkg/bslproto. It owns
// exactly one Transport at a time and is not safe for concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unisoc-tools/bfltool/pkg/bslproto"
	"github.com/unisoc-tools/bfltool/pkg/frame"
)

// State names a point in the bootstrap state machine.
type State int

const (
	Disconnected State = iota
	BootROM
	BootHandshaked
	Fdl1Loaded
	Fdl1Running
	Fdl1Handshaked
	Fdl2Loaded
	Fdl2Running
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case BootROM:
		return "boot-rom"
	case BootHandshaked:
		return "boot-handshaked"
	case Fdl1Loaded:
		return "fdl1-loaded"
	case Fdl1Running:
		return "fdl1-running"
	case Fdl1Handshaked:
		return "fdl1-handshaked"
	case Fdl2Loaded:
		return "fdl2-loaded"
	case Fdl2Running:
		return "fdl2-running"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transport is the USB bulk collaborator the orchestrator drives. Its
// concrete implementation lives outside this package (internal/usbtransport
// for real hardware, a fake for tests); the orchestrator only depends on
// this contract.
type Transport interface {
	Write(ctx context.Context, p []byte) error
	Read(ctx context.Context, buf []byte) (int, error)
	MaxPacketSize() int
}

// Config carries every tunable the reference rebinds as process globals
// after CLI parsing. No process-global state: every value is threaded
// through the Session explicitly.
type Config struct {
	FlashBase    uint32
	MTUBoot      int
	ChangedBaud  uint32
	CallTimeout  time.Duration
	ReenumAttempts int
	ReenumInterval time.Duration
}

// DefaultConfig matches the reference tool's defaults.
func DefaultConfig() Config {
	return Config{
		FlashBase:      0x10000000,
		MTUBoot:        1024,
		ChangedBaud:    921600,
		CallTimeout:    120 * time.Second,
		ReenumAttempts: 50,
		ReenumInterval: 100 * time.Millisecond,
	}
}

// Session is strictly sequential: it alternates blocking transport writes
// and reads on a single goroutine, with a fixed long timeout per call.
type Session struct {
	cfg   Config
	log   *slog.Logger
	tr    Transport
	state State
	mode  frame.Mode
	mtu   int
}

// New wraps an already-open Transport in BootROM state, ready for the
// initial handshake.
func New(cfg Config, tr Transport, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	mtu := tr.MaxPacketSize()
	if mtu <= 0 {
		mtu = cfg.MTUBoot
	}
	return &Session{cfg: cfg, log: log, tr: tr, state: BootROM, mode: frame.Boot, mtu: mtu}
}

func (s *Session) State() State { return s.state }

// SetTransport swaps in a newly re-enumerated Transport, used after FDL1
// execution disconnects and replaces the USB device.
func (s *Session) SetTransport(tr Transport) {
	s.tr = tr
	mtu := tr.MaxPacketSize()
	if mtu > 0 {
		s.mtu = mtu
	}
}

// call writes a raw (already-framed, or CheckBaud's raw probe) command and
// reads one response packet, returning the decoded (code, body) pair.
func (s *Session) call(ctx context.Context, raw []byte) (bslproto.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	if err := s.tr.Write(ctx, raw); err != nil {
		return bslproto.Response{}, fmt.Errorf("session: write: %w", err)
	}
	buf := make([]byte, s.mtu)
	n, err := s.tr.Read(ctx, buf)
	if err != nil {
		return bslproto.Response{}, fmt.Errorf("session: read: %w", err)
	}
	payload, _, err := frame.Decode(buf[:n], s.mode, false)
	if err != nil {
		return bslproto.Response{}, fmt.Errorf("session: decode frame: %w", err)
	}
	resp, err := bslproto.DecodeResponse(payload)
	if err != nil {
		return bslproto.Response{}, fmt.Errorf("session: decode response: %w", err)
	}
	if bslproto.IsLog(resp) {
		s.log.Info("device log", "message", string(resp.Body))
	}
	return resp, nil
}

// sendFramed frames cmd under the session's current CRC mode and issues it
// as one request/response call.
func (s *Session) sendFramed(ctx context.Context, cmd []byte) (bslproto.Response, error) {
	return s.call(ctx, frame.Encode(cmd, s.mode, false))
}

// Handshake issues CheckBaud followed by Connect, the pair the reference
// sends at both BootROM entry and again once an FDL stage is running. It
// does not frame CheckBaud: the probe predates any framing being
// established on the wire.
func (s *Session) Handshake(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	if err := s.tr.Write(ctx, bslproto.CheckBaud()); err != nil {
		return &BootError{Step: "check-baud", Cause: err}
	}
	buf := make([]byte, s.mtu)
	if _, err := s.tr.Read(ctx, buf); err != nil {
		return &BootError{Step: "check-baud", Cause: err}
	}

	resp, err := s.sendFramed(ctx, bslproto.Connect())
	if err != nil {
		return &BootError{Step: "connect", Cause: err}
	}
	if err := bslproto.RequireAck(bslproto.CmdConnect, resp); err != nil {
		return &BootError{Step: "connect", Cause: err}
	}

	switch s.state {
	case BootROM:
		s.state = BootHandshaked
	case Fdl1Running:
		s.state = Fdl1Handshaked
	}
	return nil
}

// LoadFDL transfers data to addr via StartData/MidstData*/EndData and
// advances the state machine. It frames under the session's current CRC mode
// and sends no checksum, with no flash-write soft-error tolerance — flash
// payload writes use WriteFlash instead.
func (s *Session) LoadFDL(ctx context.Context, addr uint32, data []byte, next State) error {
	if err := s.transfer(ctx, addr, data, 0, false); err != nil {
		return err
	}
	s.state = next
	return nil
}

// ExecFDL issues ExecData at addr and advances to next on ack.
func (s *Session) ExecFDL(ctx context.Context, addr uint32, next State) error {
	resp, err := s.sendFramed(ctx, bslproto.ExecData(addr))
	if err != nil {
		return &BootError{Step: "exec", Cause: err}
	}
	if err := bslproto.RequireAck(bslproto.CmdExecData, resp); err != nil {
		return &BootError{Step: "exec", Cause: err}
	}
	s.state = next
	return nil
}

// EnterFdlMode switches the session's CRC algorithm to Fdl, for use right
// after FDL1 handoff, once reconnection has happened and the transport has
// been swapped in via SetTransport.
func (s *Session) EnterFdlMode(mtu int) {
	s.mode = frame.Fdl
	if mtu > 0 {
		s.mtu = mtu
	}
}

// ChangeBaud issues the post-FDL2 baud switch and transitions to Ready.
func (s *Session) ChangeBaud(ctx context.Context) error {
	resp, err := s.sendFramed(ctx, bslproto.ChangeBaud(s.cfg.ChangedBaud))
	if err != nil {
		return &BootError{Step: "change-baud", Cause: err}
	}
	if err := bslproto.RequireAck(bslproto.CmdChangeBaud, resp); err != nil {
		return &BootError{Step: "change-baud", Cause: err}
	}
	s.state = Ready
	return nil
}

// transfer implements the data-transfer procedure shared by FDL loading and
// flash writes: StartData(addr,len,checksum) + MidstData* + EndData, with
// soft-error tolerance on EndData gated by flashWrite.
func (s *Session) transfer(ctx context.Context, addr uint32, data []byte, checksum uint32, flashWrite bool) error {
	startResp, err := s.sendFramed(ctx, bslproto.StartData(addr, uint32(len(data)), checksum))
	if err != nil {
		return &BootError{Step: "start-data", Cause: err}
	}
	if err := bslproto.RequireAck(bslproto.CmdStartData, startResp); err != nil {
		return &BootError{Step: "start-data", Cause: err}
	}

	chunkSize := s.cfg.MTUBoot
	if s.mode == frame.Fdl && chunkSize > s.mtu && s.mtu > 0 {
		chunkSize = s.mtu
	}
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		resp, err := s.sendFramed(ctx, bslproto.MidstData(data[off:end]))
		if err != nil {
			return &BootError{Step: "midst-data", Cause: err}
		}
		if err := bslproto.RequireAck(bslproto.CmdMidstData, resp); err != nil {
			return &BootError{Step: "midst-data", Cause: err}
		}
	}

	endResp, err := s.sendFramed(ctx, bslproto.EndData())
	if err != nil {
		return &BootError{Step: "end-data", Cause: err}
	}
	if err := bslproto.RequireEndDataAck(endResp, flashWrite); err != nil {
		return &BootError{Step: "end-data", Cause: err}
	}
	return nil
}

// WriteFlash writes data to the flash offset (relative to the configured
// flash base, or absolute when noRemap is set) computed by the caller,
// authenticating the payload with a checksum and tolerating the three soft
// EndData error codes.
func (s *Session) WriteFlash(ctx context.Context, addr uint32, data []byte) error {
	checksum := bslproto.Checksum32(data)
	return s.transfer(ctx, addr, data, checksum, true)
}

// EraseFlash issues EraseFlash(addr, length) and requires an ack.
func (s *Session) EraseFlash(ctx context.Context, addr, length uint32) error {
	resp, err := s.sendFramed(ctx, bslproto.EraseFlash(addr, length))
	if err != nil {
		return &BootError{Step: "erase-flash", Cause: err}
	}
	return bslproto.RequireAck(bslproto.CmdEraseFlash, resp)
}

// EnableWriteFlash issues EnableWriteFlash and requires an ack.
func (s *Session) EnableWriteFlash(ctx context.Context) error {
	resp, err := s.sendFramed(ctx, bslproto.EnableWriteFlash())
	if err != nil {
		return &BootError{Step: "enable-write-flash", Cause: err}
	}
	return bslproto.RequireAck(bslproto.CmdEnableWriteFlash, resp)
}

// ReadFlash issues ReadFlash(partID, length, offset) and drains transport
// reads until a short packet (< MaxPacketSize) arrives. The drained packets
// together constitute one logical HDLC frame, not one frame apiece — a
// frame's raw bytes routinely span more than one USB bulk packet, so the
// raw bytes are concatenated across the whole drain before frame.Decode and
// bslproto.DecodeResponse run exactly once, on the full buffer. This is the
// one exception to strict request/response pairing: one ReadFlash provokes
// multiple IN transfers.
func (s *Session) ReadFlash(ctx context.Context, partID, length, offset uint32) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	cmd := frame.Encode(bslproto.ReadFlash(partID, length, offset), s.mode, false)
	if err := s.tr.Write(ctx, cmd); err != nil {
		return nil, fmt.Errorf("session: read-flash write: %w", err)
	}

	var raw []byte
	maxPacket := s.mtu
	for {
		buf := make([]byte, maxPacket)
		n, err := s.tr.Read(ctx, buf)
		if err != nil {
			return nil, fmt.Errorf("session: read-flash read: %w", err)
		}
		raw = append(raw, buf[:n]...)
		if n < maxPacket {
			break
		}
	}

	payload, _, err := frame.Decode(raw, s.mode, false)
	if err != nil {
		return nil, fmt.Errorf("session: read-flash decode: %w", err)
	}
	resp, err := bslproto.DecodeResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("session: read-flash response: %w", err)
	}
	return resp.Body, nil
}

// NormalReset issues NormalReset, the terminal command of a session.
func (s *Session) NormalReset(ctx context.Context) error {
	resp, err := s.sendFramed(ctx, bslproto.NormalReset())
	if err != nil {
		return &BootError{Step: "normal-reset", Cause: err}
	}
	return bslproto.RequireAck(bslproto.CmdNormalReset, resp)
}

// EndProcess issues EndProcess, ending the BSL session without resetting.
func (s *Session) EndProcess(ctx context.Context) error {
	_, err := s.sendFramed(ctx, bslproto.EndProcess())
	if err != nil {
		return &BootError{Step: "end-process", Cause: err}
	}
	return nil
}

// ErrNotReady is returned by flash operations issued before the session has
// reached the Ready state.
var ErrNotReady = errors.New("session: not ready")

// RequireReady is a guard flash operations call before doing any I/O.
func (s *Session) RequireReady() error {
	if s.state != Ready {
		return fmt.Errorf("%w: current state is %s", ErrNotReady, s.state)
	}
	return nil
}
