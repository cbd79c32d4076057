package fs

import (
	"time"

	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs/history"
	"go.polydawn.net/gitfs/store"
)

/*
	View is every read operation that takes a root into account.

	*Filesystem is the plain view of a repository; the filter package
	wraps one to hide commits.  Mounts and the CLI consume a View so
	they work the same over either.

	All paths accepted must belong to the View's underlying Filesystem;
	relative paths are anchored at the default root.
*/
type View interface {
	Filesystem() *Filesystem

	ListRoots() ([]Path, error)
	Refs() ([]Path, error)

	Lookup(p Path, follow bool) (GitObject, error)
	Stat(p Path, follow bool) (Metadata, error)
	Exists(p Path, follow bool) (bool, error)
	ReadBytes(p Path) ([]byte, error)
	ReadLink(p Path) (string, error)
	NewDirectoryStream(dir Path, filter Filter) (*DirectoryStream, error)

	Commit(root Path) (*store.Commit, error)
	Diff(a, b Path) ([]store.Change, error)
	Submodules(root Path) ([]Submodule, error)

	History() (*history.History, error)
	ReconcileDates(observed map[plumbing.Hash]time.Time) (*history.Reconciliation, error)
}

var (
	_ View = &Filesystem{}
)
