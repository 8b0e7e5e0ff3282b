package storage

import (
	"errors"
	"fmt"
)

// Sentinels. StorageError wraps them, so match with errors.Is.
var (
	ErrNotFound     = errors.New("object not found")
	ErrInvalidKey   = errors.New("invalid storage key") // empty, or escapes its folder
	ErrTooLarge     = errors.New("object exceeds maximum size")
	ErrAccessDenied = errors.New("access denied")

	// ErrNotOK is returned when the remote host answered but did not report
	// success (e.g., Cloudinary "not found" on destroy).
	ErrNotOK = errors.New("remote host did not report ok")
)

// StorageError records the operation and key a backend or gateway call
// failed on.
type StorageError struct {
	Op  string // "Put", "Delete", "Upload", ...
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err has a cause that repeating the same call
// cannot fix, such as a malformed key or rejected credentials. A DeleteError
// is permanent only when every one of its failures is.
func IsPermanent(err error) bool {
	var de *DeleteError
	if errors.As(err, &de) {
		for _, f := range de.Failures {
			if !isPermanentCause(f) {
				return false
			}
		}
		return len(de.Failures) > 0
	}
	return isPermanentCause(err)
}

func isPermanentCause(err error) bool {
	return errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrAccessDenied)
}
