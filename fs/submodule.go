package fs

import (
	"sort"
	"strings"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/store"
)

const gitmodulesFile = ".gitmodules"

type Submodule struct {
	// Name as given in '.gitmodules'.
	Name string
	// Path of the gitlink, relative to the top of the root.
	Path string
	// URL the submodule repository can be cloned from.
	URL string
	// Remote branch name for tracking updates.  Optional.
	Branch string
	// The commit the gitlink pins.
	Commit plumbing.Hash
}

/*
	The submodules of a root, sorted by path.

	Every entry in the committed '.gitmodules' must have a gitlink at its
	path; if some other kind of object is there, or nothing, that's an
	error.  There may be *more* gitlinks in the tree than '.gitmodules'
	lists; those aren't noticed here, since this does not walk the tree.

	A root without '.gitmodules' has no submodules.

	May return errors of category:

	  - `gitfs.ErrCorrupt` -- if '.gitmodules' is unreadable or disagrees with the tree
	  - anything Commit returns
*/
func (f *Filesystem) Submodules(root Path) (_ []Submodule, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	commit, err := f.Commit(root)
	if err != nil {
		return nil, err
	}

	obj, at, err := f.walk(commit, []string{gitmodulesFile}, false)
	if IsAbsent(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	if obj.Mode != store.ModeFile {
		return nil, Errorf(gitfs.ErrCorrupt, "%s in %s is a %s, not a file", gitmodulesFile, commit.ID, obj.Mode)
	}
	data, err := f.content(commit, at, obj)
	if err != nil {
		return nil, err
	}
	modules := config.NewModules()
	if err := modules.Unmarshal(data); err != nil {
		return nil, Errorf(gitfs.ErrCorrupt, "found but could not parse %s in %s: %s", gitmodulesFile, commit.ID, err)
	}

	result := make([]Submodule, 0, len(modules.Submodules))
	for name, sm := range modules.Submodules {
		if sm == nil {
			return nil, Errorf(gitfs.ErrCorrupt, "incomplete submodule entry %q in %s", name, commit.ID)
		}
		entry, _, err := f.walk(commit, splitSegments(sm.Path), false)
		if IsAbsent(err) {
			return nil, Errorf(gitfs.ErrCorrupt, "submodule %q has no matching tree entry at %q", name, sm.Path)
		} else if err != nil {
			return nil, err
		}
		if entry.Mode != store.ModeSubmodule {
			return nil, Errorf(gitfs.ErrCorrupt, "submodule %q path %q is a %s, not a gitlink", name, sm.Path, entry.Mode)
		}
		result = append(result, Submodule{
			Name:   sm.Name,
			Path:   strings.Trim(sm.Path, "/"),
			URL:    sm.URL,
			Branch: sm.Branch,
			Commit: entry.ID,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}
