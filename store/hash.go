package store

import (
	"encoding/hex"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
)

/*
	Parse a full 40-digit hex object id.  Abbreviated ids are refused:
	resolving them would need the object database.
*/
func ParseHash(s string) (plumbing.Hash, error) {
	if len(s) != 2*len(plumbing.ZeroHash) {
		return plumbing.ZeroHash, Errorf(gitfs.ErrParse, "object id %q must be %d hex digits", s, 2*len(plumbing.ZeroHash))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return plumbing.ZeroHash, Errorf(gitfs.ErrParse, "object id %q is not hex", s)
	}
	return plumbing.NewHash(s), nil
}
