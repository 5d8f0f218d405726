package projects

import (
	"strconv"
	"time"
)

// IdentityKind distinguishes an unconfirmed local record from one the
// backend has acknowledged.
type IdentityKind int

const (
	IdentityPending IdentityKind = iota + 1
	IdentityConfirmed
)

// Identity is either Pending(localID) or Confirmed(serverID). Only the
// backend issues durable ids; local ids exist until the create call returns.
type Identity struct {
	kind  IdentityKind
	value string
}

// Pending wraps a temporary client-side id.
func Pending(localID string) Identity {
	return Identity{kind: IdentityPending, value: localID}
}

// Confirmed wraps a server-issued id.
func Confirmed(id ProjectID) Identity {
	return Identity{kind: IdentityConfirmed, value: string(id)}
}

// TemporaryID is the timestamp-based id used for pre-confirmation renders.
// seq disambiguates records created within the same millisecond.
func TemporaryID(now time.Time, seq uint64) string {
	return "local-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(seq, 10)
}

func (i Identity) Kind() IdentityKind { return i.kind }

func (i Identity) IsPending() bool { return i.kind == IdentityPending }

// Server returns the confirmed id, if any.
func (i Identity) Server() (ProjectID, bool) {
	if i.kind != IdentityConfirmed {
		return "", false
	}
	return ProjectID(i.value), true
}

// Local returns the temporary id, if any.
func (i Identity) Local() (string, bool) {
	if i.kind != IdentityPending {
		return "", false
	}
	return i.value, true
}

// ProjectID is the id the UI keys the record by, whichever variant it is.
func (i Identity) ProjectID() ProjectID { return ProjectID(i.value) }

func (i Identity) String() string {
	switch i.kind {
	case IdentityPending:
		return "pending(" + i.value + ")"
	case IdentityConfirmed:
		return "confirmed(" + i.value + ")"
	default:
		return "unknown"
	}
}
