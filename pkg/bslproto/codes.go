// Package bslproto builds BFL command packets and parses response packets.
// Naming follows the reference protocol's BSL_CMD_*/BSL_REP_* constants
// (unicmd.py), translated to Go identifiers.
package bslproto

// Command codes (PC -> phone), range [0x00, 0x7F].
const (
	CmdConnect           uint16 = 0x00
	CmdStartData         uint16 = 0x01
	CmdMidstData         uint16 = 0x02
	CmdEndData           uint16 = 0x03
	CmdExecData          uint16 = 0x04
	CmdNormalReset       uint16 = 0x05
	CmdReadFlash         uint16 = 0x06
	CmdReadChipType      uint16 = 0x07
	CmdReadNVItem        uint16 = 0x08
	CmdChangeBaud        uint16 = 0x09
	CmdEraseFlash        uint16 = 0x0A
	CmdRepartition       uint16 = 0x0B
	CmdReadFlashType     uint16 = 0x0C
	CmdReadFlashInfo     uint16 = 0x0D
	CmdReadSectorSize    uint16 = 0x0F
	CmdReadStart         uint16 = 0x10
	CmdReadMidst         uint16 = 0x11
	CmdReadEnd           uint16 = 0x12
	CmdKeepCharge        uint16 = 0x13
	CmdReadFlashUID      uint16 = 0x15
	CmdPowerOff          uint16 = 0x17
	CmdReadChipUID       uint16 = 0x1A
	CmdEnableWriteFlash  uint16 = 0x1B
	CmdEnableSecureBoot  uint16 = 0x1C
	CmdExecNandInit      uint16 = 0x21
	CmdCheckBaud         uint16 = 0x7E // raw 2-byte probe, not a framed data packet
	CmdEndProcess        uint16 = 0x7F
)

// Response codes (phone -> PC), range [0x80, 0xFF].
const (
	RepAck                       uint16 = 0x80
	RepVer                       uint16 = 0x81
	RepInvalidCmd                uint16 = 0x82
	RepUnknownCmd                uint16 = 0x83
	RepOperationFailed           uint16 = 0x84
	RepNotSupportBaudrate        uint16 = 0x85
	RepDownNotStart              uint16 = 0x86
	RepDownMultiStart            uint16 = 0x87
	RepDownEarlyEnd              uint16 = 0x88
	RepDownDestError             uint16 = 0x89
	RepDownSizeError             uint16 = 0x8A
	RepVerifyError               uint16 = 0x8B
	RepNotVerify                 uint16 = 0x8C
	RepNotEnoughMemory           uint16 = 0x8D
	RepWaitInputTimeout          uint16 = 0x8E
	RepSucceed                   uint16 = 0x8F
	RepValidBaudrate             uint16 = 0x90
	RepRepeatContinue            uint16 = 0x91
	RepRepeatBreak               uint16 = 0x92
	RepReadFlash                 uint16 = 0x93
	RepReadChipType              uint16 = 0x94
	RepReadNVItem                uint16 = 0x95
	RepIncompatiblePartition     uint16 = 0x96
	RepUnknownDevice             uint16 = 0x97
	RepInvalidDeviceSize         uint16 = 0x98
	RepIllegalSDRAM              uint16 = 0x99
	RepWrongSDRAMParameter       uint16 = 0x9A
	RepReadFlashInfo             uint16 = 0x9B
	RepReadSectorSize            uint16 = 0x9C
	RepReadFlashType             uint16 = 0x9D
	RepReadFlashUID              uint16 = 0x9E
	RepReadSoftSimEID            uint16 = 0x9F
	RepErrorChecksum             uint16 = 0xA0
	RepChecksumDiff              uint16 = 0xA1
	RepWriteError                uint16 = 0xA2
	RepChipIDNotMatch            uint16 = 0xA3
	RepFlashCfgError             uint16 = 0xA4
	RepDownStlSizeError          uint16 = 0xA5
	RepSecurityVerificationFail  uint16 = 0xA6
	RepPhoneIsRooted             uint16 = 0xA7
	RepSecVerifyError            uint16 = 0xAA
	RepReadChipUID               uint16 = 0xAB
	RepNotEnableWriteFlash       uint16 = 0xAC
	RepEnableSecureBootError     uint16 = 0xAD
	RepFlashWrittenProtection    uint16 = 0xB3
	RepFlashInitializingFail     uint16 = 0xB4
	RepRFTransceiverType         uint16 = 0xB5
	RepUnsupportedCommand        uint16 = 0xFE
	RepLog                       uint16 = 0xFF
)

// repDescriptions maps response codes to a short human-readable label, used
// by ResponseError for diagnostics.
var repDescriptions = map[uint16]string{
	RepAck:                      "ack",
	RepVer:                      "version",
	RepInvalidCmd:               "invalid command",
	RepUnknownCmd:               "unknown command",
	RepOperationFailed:          "operation failed",
	RepNotSupportBaudrate:       "unsupported baud rate",
	RepDownNotStart:             "download not started",
	RepDownMultiStart:           "download already started",
	RepDownEarlyEnd:             "download ended early",
	RepDownDestError:            "download destination error",
	RepDownSizeError:            "download size error",
	RepVerifyError:              "verify error",
	RepNotVerify:                "not verified",
	RepNotEnoughMemory:          "not enough memory",
	RepWaitInputTimeout:         "wait-for-input timeout",
	RepSucceed:                  "succeeded",
	RepValidBaudrate:            "valid baud rate",
	RepRepeatContinue:           "repeat: continue",
	RepRepeatBreak:              "repeat: break",
	RepReadFlash:                "flash read data",
	RepReadChipType:             "chip type data",
	RepReadNVItem:               "NV item data",
	RepIncompatiblePartition:    "incompatible partition",
	RepUnknownDevice:            "unknown device",
	RepInvalidDeviceSize:        "invalid device size",
	RepIllegalSDRAM:             "illegal SDRAM",
	RepWrongSDRAMParameter:      "wrong SDRAM parameter",
	RepReadFlashInfo:            "flash info data",
	RepReadSectorSize:           "sector size data",
	RepReadFlashType:            "flash type data",
	RepReadFlashUID:             "flash UID data",
	RepReadSoftSimEID:           "soft-SIM EID data",
	RepErrorChecksum:            "checksum error",
	RepChecksumDiff:             "checksum differs",
	RepWriteError:               "write error",
	RepChipIDNotMatch:           "chip ID mismatch",
	RepFlashCfgError:            "flash config error",
	RepDownStlSizeError:         "download STL size error",
	RepSecurityVerificationFail: "security verification failed",
	RepPhoneIsRooted:            "phone is rooted",
	RepSecVerifyError:           "security verify error",
	RepReadChipUID:              "chip UID data",
	RepNotEnableWriteFlash:      "write-flash not enabled",
	RepEnableSecureBootError:    "enable secure boot error",
	RepFlashWrittenProtection:   "flash write protection",
	RepFlashInitializingFail:    "flash initializing failed",
	RepRFTransceiverType:        "RF transceiver type data",
	RepUnsupportedCommand:       "unsupported command",
	RepLog:                      "log passthrough",
}

func repDescription(code uint16) string {
	if d, ok := repDescriptions[code]; ok {
		return d
	}
	return "unknown response code"
}
