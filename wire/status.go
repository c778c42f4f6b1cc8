package wire

import "fmt"

// Status is the wire-level result code the server reports for ADD_ENTRY and
// READ_ENTRY responses.
type Status uint32

const (
	StatusOK Status = iota
	StatusBadVersion
	StatusFenced
	StatusUnauthorized
	StatusReadOnly
	StatusNoSuchEntry
	StatusNoSuchLedger
	StatusTrimmed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "EOK"
	case StatusBadVersion:
		return "EBADVERSION"
	case StatusFenced:
		return "EFENCED"
	case StatusUnauthorized:
		return "EUA"
	case StatusReadOnly:
		return "EREADONLY"
	case StatusNoSuchEntry:
		return "ENOENTRY"
	case StatusNoSuchLedger:
		return "ENOLEDGER"
	case StatusTrimmed:
		return "ETRIMMED"
	default:
		return fmt.Sprintf("ESTATUS(%d)", uint32(s))
	}
}
