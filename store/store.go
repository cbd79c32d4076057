/*
	The store package is the object store adapter: the narrow, read-only
	view of a git object database that the rest of gitfs is built on.

	`Store` is the interface the filesystem consumes; `GitStore` is its
	implementation over go-git storage (on disk via go-billy, or in memory).
	Tests and exotic callers may supply their own `Store`.

	All errors returned are categorized:

	  - `gitfs.ErrNotFound` -- missing object or ref
	  - `gitfs.ErrIntegrity` -- object present but of the wrong type
	  - `gitfs.ErrCorrupt` -- object present but undecodable
	  - `gitfs.ErrIO` -- the storage underneath failed
	  - `gitfs.ErrClosed` -- use after Close
*/
package store

import (
	"time"

	"gopkg.in/src-d/go-git.v4/plumbing"
)

/*
	Store is the read handle on one repository's object database.

	Implementations are not required to be safe for concurrent use.
*/
type Store interface {
	// Resolve a ref name (following symbolic refs and peeling tags) to a commit id.
	ResolveRef(name plumbing.ReferenceName) (plumbing.Hash, error)

	// List every "refs/..." reference that peels to a commit, sorted by name.
	Refs() ([]Ref, error)

	ReadCommit(id plumbing.Hash) (*Commit, error)

	// Look up one direct child of a tree by name.
	ReadTreeEntry(tree plumbing.Hash, name string) (TreeEntry, error)

	// List the direct children of a tree, in git's tree order.
	ListTree(tree plumbing.Hash) ([]TreeEntry, error)

	ReadBlob(id plumbing.Hash) ([]byte, error)

	// Recursive changes between two trees, as paths relative to the tree roots.
	DiffTrees(from, to plumbing.Hash) ([]Change, error)

	Close() error
}

type Signature struct {
	Name  string
	Email string
	When  time.Time
}

type Commit struct {
	ID        plumbing.Hash
	Tree      plumbing.Hash
	Parents   []plumbing.Hash
	Author    Signature
	Committer Signature
	Message   string
}

type Mode uint8

const (
	ModeTree = Mode(iota + 1)
	ModeFile
	ModeExecutable
	ModeSymlink
	ModeSubmodule
)

func (m Mode) String() string {
	switch m {
	case ModeTree:
		return "tree"
	case ModeFile:
		return "file"
	case ModeExecutable:
		return "executable"
	case ModeSymlink:
		return "symlink"
	case ModeSubmodule:
		return "submodule"
	default:
		return "invalid"
	}
}

type TreeEntry struct {
	Name string
	ID   plumbing.Hash
	Mode Mode
}

type Ref struct {
	Name   plumbing.ReferenceName
	Commit plumbing.Hash
}

type Action uint8

const (
	Insert = Action(iota + 1)
	Delete
	Modify
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Modify:
		return "modify"
	default:
		return "invalid"
	}
}

/*
	One changed path between two trees.
	From is empty for inserts; To is empty for deletes.
*/
type Change struct {
	Action Action
	From   string
	To     string
}
