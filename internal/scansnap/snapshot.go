// Package scansnap implements the reference-counted scan-result snapshot
// described by the wifi manager's scan pipeline: a snapshot is published once
// a scan completes and stays readable by any borrower even after a newer
// snapshot replaces it in the container's own slot.
package scansnap

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MaxRecords is the maximum number of access-point records a snapshot may hold.
const MaxRecords = 32

// APRecord is one access point discovered during a scan.
type APRecord struct {
	SSID    string
	BSSID   [6]byte
	RSSI    int8
	Channel uint8
	Hidden  bool
}

// Snapshot is an immutable view of a completed scan. It is created with a
// reference count of one; callers obtain additional references via Ref and
// must release them via Release. The snapshot's record slice is only freed
// once the count reaches zero.
type Snapshot struct {
	ID      uuid.UUID
	Tstamp  time.Time
	Records []APRecord

	refs int32
}

// New creates a snapshot owning records, with an initial reference count of one.
// records is clamped to MaxRecords, matching the collect-scan clamp in §4.3.
func New(records []APRecord) *Snapshot {
	if len(records) > MaxRecords {
		records = records[:MaxRecords]
	}
	return &Snapshot{
		ID:      uuid.New(),
		Tstamp:  time.Now(),
		Records: records,
		refs:    1,
	}
}

// Ref takes a strong reference and returns the same snapshot. The caller must
// call Release exactly once for every Ref (and for the implicit reference
// returned by New, when it is the one being handed out).
func (s *Snapshot) Ref() *Snapshot {
	atomic.AddInt32(&s.refs, 1)
	return s
}

// Release decrements the reference count. When it reaches zero the snapshot's
// backing storage is dropped; the Snapshot value itself is left for the
// garbage collector once the last reference is gone.
func (s *Snapshot) Release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		s.Records = nil
	}
}

// RefCount reports the current reference count, for diagnostics and tests only.
func (s *Snapshot) RefCount() int32 {
	return atomic.LoadInt32(&s.refs)
}
