package errs

import (
	"testing"

	"github.com/kolbv/ledgerclient/wire"
)

func TestMapAddStatus(t *testing.T) {
	cases := map[wire.Status]Code{
		wire.StatusOK:          OK,
		wire.StatusBadVersion:  ProtocolVersion,
		wire.StatusFenced:      LedgerFenced,
		wire.StatusUnauthorized: Unauthorized,
		wire.StatusReadOnly:    ReadOnly,
		wire.StatusNoSuchEntry: WriteFailure,
	}
	for status, want := range cases {
		if got := MapAddStatus(status); got != want {
			t.Errorf("MapAddStatus(%v) = %v, want %v", status, got, want)
		}
	}
}

func TestMapReadStatus(t *testing.T) {
	cases := map[wire.Status]Code{
		wire.StatusOK:           OK,
		wire.StatusNoSuchEntry:  NoSuchEntry,
		wire.StatusNoSuchLedger: NoSuchEntry,
		wire.StatusTrimmed:      EntryTrimmed,
		wire.StatusUnauthorized: Unauthorized,
		wire.StatusReadOnly:     ReadFailure,
	}
	for status, want := range cases {
		if got := MapReadStatus(status); got != want {
			t.Errorf("MapReadStatus(%v) = %v, want %v", status, got, want)
		}
	}
}
