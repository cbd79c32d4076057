package fs

import (
	"os"
	"time"

	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs/store"
)

/*
	GitObject is what a path lookup lands on: an object id and the mode
	of the tree entry that named it.  The top of a root is a tree whose
	id is the commit's tree.
*/
type GitObject struct {
	ID   plumbing.Hash
	Mode store.Mode
}

type Metadata struct {
	Name     string        // last segment; empty for the top of a root
	Mode     store.Mode    // tree, file, executable, symlink, or submodule
	ID       plumbing.Hash // object id (for submodules, the gitlinked commit)
	Size     int64         // content length for files and symlinks
	Linkname string        // if symlink: target of the link
	ModTime  time.Time     // the root commit's primary date
}

/*
	The closest os.FileMode.  Everything is read-only; only the
	executable bit survives from git.  Submodules look like empty dirs.
*/
func (m Metadata) FileMode() os.FileMode {
	switch m.Mode {
	case store.ModeTree, store.ModeSubmodule:
		return os.ModeDir | 0555
	case store.ModeExecutable:
		return 0555
	case store.ModeSymlink:
		return os.ModeSymlink | 0777
	default:
		return 0444
	}
}

func (m Metadata) IsDir() bool {
	return m.Mode == store.ModeTree
}
