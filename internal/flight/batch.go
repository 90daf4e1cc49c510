package flight

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrIndexOutOfRange is returned when an operator index does not address a record.
var ErrIndexOutOfRange = errors.New("index out of range")

// Batch is the ordered set of records found on one device. Operators address
// records by their position in the list; internally every edit is applied by
// UID so appended duplicates never shift the record an index was taken from.
type Batch struct {
	Root    string    `json:"root"`
	Records []*Record `json:"records"`
}

// NewBatch creates an empty batch for the device rooted at root.
func NewBatch(root string) *Batch {
	return &Batch{Root: root}
}

func (b *Batch) Len() int {
	return len(b.Records)
}

// Append adds records to the end of the batch.
func (b *Batch) Append(records ...*Record) {
	b.Records = append(b.Records, records...)
}

// UID translates an operator index into the record UID.
func (b *Batch) UID(index int) (uuid.UUID, error) {
	if index < 0 || index >= len(b.Records) {
		return uuid.Nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(b.Records))
	}
	return b.Records[index].UID, nil
}

// Lookup returns the record with the given UID.
func (b *Batch) Lookup(uid uuid.UUID) (*Record, bool) {
	for _, r := range b.Records {
		if r.UID == uid {
			return r, true
		}
	}
	return nil, false
}

// At returns the record at the operator index.
func (b *Batch) At(index int) (*Record, error) {
	uid, err := b.UID(index)
	if err != nil {
		return nil, err
	}
	r, _ := b.Lookup(uid)
	return r, nil
}

// Count returns the number of records of the given capture type.
func (b *Batch) Count(t CaptureType) int {
	var n int
	for _, r := range b.Records {
		if r.CaptureType == t {
			n++
		}
	}
	return n
}
