package cip

import "fmt"

// General status codes.
const (
	StatusSuccess          byte = 0x00
	StatusConnectionFail   byte = 0x01
	StatusResourceUnavail  byte = 0x02
	StatusPathSegmentError byte = 0x04
	StatusPathUnknown      byte = 0x05
	StatusPartialTransfer  byte = 0x06
	StatusServiceNotSup    byte = 0x08
	StatusAttrNotSettable  byte = 0x0E
	StatusPrivilege        byte = 0x0F
	StatusNotEnoughData    byte = 0x13
	StatusTooMuchData      byte = 0x15
	StatusObjectNotExist   byte = 0x16
	StatusGeneralError     byte = 0xFF
)

// Logix extended status codes carried in the first additional status word.
const (
	ExtIllegalType  uint16 = 0x2101
	ExtTagNotFound  uint16 = 0x2104
	ExtTagReadOnly  uint16 = 0x2105
	ExtSizeTooSmall uint16 = 0x2107
	ExtSizeTooLarge uint16 = 0x2108
	ExtOffsetError  uint16 = 0x2109
)

// StatusError is a non-success CIP reply.
type StatusError struct {
	Service  byte
	Status   byte
	Extended uint16
}

func (e *StatusError) Error() string {
	if e.Extended != 0 {
		return fmt.Sprintf("CIP error: %s (0x%02X), extended: %s (0x%04X)",
			StatusName(e.Status), e.Status, ExtStatusName(e.Extended), e.Extended)
	}
	return fmt.Sprintf("CIP error: %s (0x%02X)", StatusName(e.Status), e.Status)
}

// NotFound reports whether the controller rejected the request path itself,
// which for symbolic requests means the tag does not exist.
func (e *StatusError) NotFound() bool {
	switch e.Status {
	case StatusPathSegmentError, StatusPathUnknown, StatusObjectNotExist:
		return true
	}
	return e.Extended == ExtTagNotFound
}

// StatusName returns the ODVA name for a general status code.
func StatusName(status byte) string {
	switch status {
	case StatusSuccess:
		return "Success"
	case StatusConnectionFail:
		return "Connection Failure"
	case StatusResourceUnavail:
		return "Resource Unavailable"
	case 0x03:
		return "Invalid Parameter"
	case StatusPathSegmentError:
		return "Path Segment Error"
	case StatusPathUnknown:
		return "Path Unknown"
	case StatusPartialTransfer:
		return "Partial Transfer"
	case 0x07:
		return "Connection Lost"
	case StatusServiceNotSup:
		return "Service Not Supported"
	case 0x09:
		return "Invalid Attribute Value"
	case StatusAttrNotSettable:
		return "Attribute Not Settable"
	case StatusPrivilege:
		return "Privilege Violation"
	case 0x10:
		return "Device State Conflict"
	case 0x11:
		return "Reply Data Too Large"
	case StatusNotEnoughData:
		return "Not Enough Data"
	case 0x14:
		return "Attribute Not Supported"
	case StatusTooMuchData:
		return "Too Much Data"
	case StatusObjectNotExist:
		return "Object Does Not Exist"
	case 0x1E:
		return "Embedded Service Error"
	case 0x26:
		return "Invalid Path Size"
	case StatusGeneralError:
		return "General Error"
	default:
		return fmt.Sprintf("Status 0x%02X", status)
	}
}

// ExtStatusName returns a name for Logix and Connection Manager extended codes.
func ExtStatusName(ext uint16) string {
	switch ext {
	case ExtIllegalType:
		return "Illegal Data Type"
	case ExtTagNotFound:
		return "Tag Not Found"
	case ExtTagReadOnly:
		return "Tag Read Only"
	case ExtSizeTooSmall:
		return "Size Too Small"
	case ExtSizeTooLarge:
		return "Size Too Large"
	case ExtOffsetError:
		return "Offset Out of Range"
	case 0x0204:
		return "Unconnected Send Timed Out"
	case 0x0311:
		return "Invalid Port"
	case 0x0312:
		return "Invalid Link Address"
	case 0x0315:
		return "Invalid Segment in Path"
	default:
		return fmt.Sprintf("Extended Status 0x%04X", ext)
	}
}
