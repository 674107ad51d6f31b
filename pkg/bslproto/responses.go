package bslproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Response is a decoded (code, body) pair. Length is implied by len(Body)
// after the declared length has been used to slice the frame payload.
type Response struct {
	Code uint16
	Body []byte
}

// DecodeResponse parses an already-unframed payload (the output of
// frame.Decode) into its (code, length, body) header and content, per the
// response packet layout: big-endian (u16 code, u16 length) followed by
// length bytes of content.
func DecodeResponse(payload []byte) (Response, error) {
	if len(payload) < 4 {
		return Response{}, fmt.Errorf("bslproto: response shorter than header: %d bytes", len(payload))
	}
	code := binary.BigEndian.Uint16(payload[0:2])
	length := binary.BigEndian.Uint16(payload[2:4])
	if int(length) > len(payload)-4 {
		return Response{}, fmt.Errorf("bslproto: response declares length %d but only %d bytes follow", length, len(payload)-4)
	}
	return Response{Code: code, Body: payload[4 : 4+int(length)]}, nil
}

// ResponseError reports a response code the caller did not expect, carrying
// the command that provoked it for diagnostics.
type ResponseError struct {
	Command uint16
	Code    uint16
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("bslproto: command 0x%02X got response 0x%02X (%s)", e.Command, e.Code, repDescription(e.Code))
}

// IsUnexpectedResponse reports whether err is a *ResponseError.
func IsUnexpectedResponse(err error) bool {
	var re *ResponseError
	return errors.As(err, &re)
}

// RequireAck returns a *ResponseError wrapping command unless resp.Code is
// RepAck.
func RequireAck(command uint16, resp Response) error {
	if resp.Code == RepAck {
		return nil
	}
	return &ResponseError{Command: command, Code: resp.Code}
}

// softEndDataCodes are tolerated in flash-write mode when closing a transfer:
// the device may report a non-fatal write problem instead of acking, and the
// orchestrator proceeds anyway.
var softEndDataCodes = map[uint16]bool{
	RepWriteError:    true,
	RepFlashCfgError: true,
	RepLog:           true,
}

// IsSoftEndDataError reports whether code is one of the three response codes
// tolerated on EndData in flash-write mode (write error, flash config error,
// or a passthrough log message) rather than treated as a fatal mismatch.
func IsSoftEndDataError(code uint16) bool {
	return softEndDataCodes[code]
}

// RequireEndDataAck applies the EndData acceptance rule: ACK always passes;
// in flash-write mode the three soft codes also pass; anything else is a
// *ResponseError.
func RequireEndDataAck(resp Response, flashWrite bool) error {
	if resp.Code == RepAck {
		return nil
	}
	if flashWrite && IsSoftEndDataError(resp.Code) {
		return nil
	}
	return &ResponseError{Command: CmdEndData, Code: resp.Code}
}

// IsLog reports whether resp is a passthrough log message (0xFF) the
// orchestrator should surface to the user rather than interpret.
func IsLog(resp Response) bool {
	return resp.Code == RepLog
}
