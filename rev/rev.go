/*
	The rev package holds the root component of a gitfs path: a reference
	to a commit, either by a (mutable) ref name or by a (fixed) commit id.

	Revs are plain comparable values.  Identity is syntactic: a ref and a
	commit id are never equal, even when the ref currently points at that
	very commit.
*/
package rev

import (
	"strings"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/store"
)

type Kind uint8

const (
	KindRef = Kind(iota + 1)
	KindCommitID
)

const refPrefix = "refs/"

/*
	Rev is a tagged union of Ref(name) and CommitID(hash).
	The zero value is not a valid Rev; see IsZero.
*/
type Rev struct {
	kind Kind
	name plumbing.ReferenceName // KindRef only
	id   plumbing.Hash          // KindCommitID only
}

// The root that relative paths are implicitly anchored to.
var Default = Rev{kind: KindRef, name: "refs/heads/main"}

/*
	Make a Rev from a ref name.

	Names must start with "refs/", and may not end with a slash,
	contain "//", or contain a backslash.
*/
func Ref(name string) (Rev, error) {
	if err := checkRefName(name); err != nil {
		return Rev{}, err
	}
	return Rev{kind: KindRef, name: plumbing.ReferenceName(name)}, nil
}

func MustRef(name string) Rev {
	r, err := Ref(name)
	if err != nil {
		panic(err)
	}
	return r
}

func Branch(short string) (Rev, error) {
	return Ref("refs/heads/" + short)
}

func CommitID(id plumbing.Hash) Rev {
	return Rev{kind: KindCommitID, id: id}
}

/*
	Parse a commit id from its 40-character lowercase hex form.
*/
func ParseCommitID(hex string) (Rev, error) {
	if strings.ToLower(hex) != hex {
		return Rev{}, Errorf(gitfs.ErrParse, "commit ids are lowercase hex: %q", hex)
	}
	id, err := store.ParseHash(hex)
	if err != nil {
		return Rev{}, err
	}
	return CommitID(id), nil
}

/*
	Parse the bare form of a rev: either "refs/..." or 40 hex digits.
*/
func Parse(s string) (Rev, error) {
	if strings.HasPrefix(s, refPrefix) {
		return Ref(s)
	}
	r, err := ParseCommitID(s)
	if err != nil {
		return Rev{}, Errorf(gitfs.ErrParse, "%q is neither a ref name starting with %q nor a commit id: %s", s, refPrefix, err)
	}
	return r, nil
}

/*
	Parse the root form of a rev: "/" + bare form + "/".
*/
func ParseRootString(s string) (Rev, error) {
	if len(s) < 2 || s[0] != '/' || s[len(s)-1] != '/' {
		return Rev{}, Errorf(gitfs.ErrParse, "root %q must start and end with a slash", s)
	}
	return Parse(s[1 : len(s)-1])
}

func checkRefName(name string) error {
	switch {
	case !strings.HasPrefix(name, refPrefix):
		return Errorf(gitfs.ErrParse, "ref name %q must start with %q", name, refPrefix)
	case len(name) == len(refPrefix):
		return Errorf(gitfs.ErrParse, "ref name %q is empty after the prefix", name)
	case strings.HasSuffix(name, "/"):
		return Errorf(gitfs.ErrParse, "ref name %q must not end with a slash", name)
	case strings.Contains(name, "//"):
		return Errorf(gitfs.ErrParse, "ref name %q must not contain a double slash", name)
	case strings.ContainsRune(name, '\\'):
		return Errorf(gitfs.ErrParse, "ref name %q must not contain a backslash", name)
	}
	return nil
}

func (r Rev) Kind() Kind { return r.kind }

func (r Rev) IsZero() bool { return r.kind == 0 }

func (r Rev) IsRef() bool { return r.kind == KindRef }

func (r Rev) IsCommitID() bool { return r.kind == KindCommitID }

/*
	The ref name; only meaningful when IsRef.
*/
func (r Rev) RefName() plumbing.ReferenceName { return r.name }

/*
	The commit id; only meaningful when IsCommitID.
*/
func (r Rev) ID() plumbing.Hash { return r.id }

/*
	The bare form: the ref name, or the commit id in hex.
*/
func (r Rev) Bare() string {
	switch r.kind {
	case KindRef:
		return string(r.name)
	case KindCommitID:
		return r.id.String()
	default:
		return ""
	}
}

/*
	The root form: "/" + bare + "/".  The zero Rev renders as "".
*/
func (r Rev) String() string {
	if r.kind == 0 {
		return ""
	}
	return "/" + r.Bare() + "/"
}
