package listing

import (
	"errors"
	"fmt"
)

// ErrNoDataBlock is returned when the page has no __NEXT_DATA__ payload.
// Bot challenge pages look exactly like this.
var ErrNoDataBlock = errors.New("no embedded data block found")

// ParseError reports a page whose embedded payload is absent or unreadable.
type ParseError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrNoDataBlock) {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// RecordWarning describes a single feed item that was skipped.
type RecordWarning struct {
	// Bucket is the feed array the item came from.
	Bucket string

	// Index is the item position within its bucket.
	Index int

	// Token is the item's identity token, empty when it could not be read.
	Token string

	Reason string
}

// String renders the warning for logs.
func (w RecordWarning) String() string {
	token := w.Token
	if token == "" {
		token = "?"
	}
	return fmt.Sprintf("%s[%d] (token %s): %s", w.Bucket, w.Index, token, w.Reason)
}
