package fs

import (
	"github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
)

/*
	True for the errors that mean "there is nothing at that path":
	a missing segment, or a non-tree where a tree was needed on the way down.
*/
func IsAbsent(err error) bool {
	switch errcat.Category(err) {
	case gitfs.ErrNotFound, gitfs.ErrNotADirectory:
		return true
	default:
		return false
	}
}

func errClosed(identity string) error {
	return errcat.Errorf(gitfs.ErrClosed, "filesystem %s is closed", identity)
}
