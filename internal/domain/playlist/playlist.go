// Package playlist provides circular next/previous navigation over a live
// file listing. No index is kept: every call re-scans the listing and
// locates the current track by name.
package playlist

import (
	"context"

	"github.com/osa030/wavbox/internal/domain/track"
)

// Cursor enumerates a listing in store order.
type Cursor interface {
	// Next returns the entry under the cursor and advances it.
	// ok is false once the listing is exhausted.
	Next() (name string, ok bool)
	// Rewind moves the cursor back to the first entry.
	Rewind()
}

// Scanner opens independent cursors over the track listing.
type Scanner interface {
	Scan(ctx context.Context) (Cursor, error)
}

// Navigator computes the neighbours of a track in the listing.
type Navigator struct {
	scanner Scanner
}

// NewNavigator creates a navigator over the given scanner.
func NewNavigator(scanner Scanner) *Navigator {
	return &Navigator{scanner: scanner}
}

// Next returns the entry after current, wrapping from the last entry to the
// first. ok is false when the listing is empty or does not contain current.
func (n *Navigator) Next(ctx context.Context, current string) (string, bool, error) {
	behind, ahead, err := n.cursors(ctx)
	if err != nil || ahead == nil {
		return "", false, err
	}

	ahead.Next()
	lead := advanceWrapping(ahead)

	for lag, ok := behind.Next(); ok; lag, ok = behind.Next() {
		if track.SameName(lag, current) {
			return lead, true, nil
		}
		lead = advanceWrapping(ahead)
	}
	return "", false, nil
}

// Previous returns the entry before current, wrapping from the first entry
// to the last. Only the leading cursor wraps; the scan ends when the
// trailing cursor runs off the end of the listing.
func (n *Navigator) Previous(ctx context.Context, current string) (string, bool, error) {
	behind, ahead, err := n.cursors(ctx)
	if err != nil || ahead == nil {
		return "", false, err
	}

	ahead.Next()
	lead := advanceWrapping(ahead)

	for lag, ok := behind.Next(); ok; lag, ok = behind.Next() {
		if track.SameName(lead, current) {
			return lag, true, nil
		}
		lead = advanceWrapping(ahead)
	}
	return "", false, nil
}

// cursors opens the two scan cursors. Both are nil when the listing is empty.
func (n *Navigator) cursors(ctx context.Context) (Cursor, Cursor, error) {
	behind, err := n.scanner.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	ahead, err := n.scanner.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}

	if _, ok := ahead.Next(); !ok {
		return nil, nil, nil
	}
	ahead.Rewind()
	return behind, ahead, nil
}

// advanceWrapping advances c and rewinds it to the first entry at the end.
func advanceWrapping(c Cursor) string {
	name, ok := c.Next()
	if !ok {
		c.Rewind()
		name, _ = c.Next()
	}
	return name
}

// Listing is an in-memory snapshot cursor. Stores return it from Scan.
type Listing struct {
	names []string
	pos   int
}

// NewListing creates a cursor over names in the given order.
func NewListing(names []string) *Listing {
	return &Listing{names: names}
}

// Next implements Cursor.
func (l *Listing) Next() (string, bool) {
	if l.pos >= len(l.names) {
		return "", false
	}
	name := l.names[l.pos]
	l.pos++
	return name, true
}

// Rewind implements Cursor.
func (l *Listing) Rewind() {
	l.pos = 0
}

// Len returns the number of entries in the snapshot.
func (l *Listing) Len() int {
	return len(l.names)
}
