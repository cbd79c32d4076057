/*
	The fs package presents one git repository as a read-only filesystem.

	Paths (see Path) name a location below a root, where a root is a
	commit given either by a ref name or by commit id.  A Filesystem
	(the facade over one repository's object store) answers every
	question about what such a path holds, caching blob content and
	root resolution for its lifetime.

	A Filesystem is not safe for concurrent use.  Open them through a
	Registry, which guarantees at most one per repository.
*/
package fs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/history"
	"go.polydawn.net/gitfs/log"
	"go.polydawn.net/gitfs/rev"
	"go.polydawn.net/gitfs/store"
)

// Same limit as Linux's MAXSYMLINKS.
const maxSymlinkHops = 40

type Options struct {
	Monitor    gitfs.Monitor      // Optionally: where to send log events.
	DateSource history.DateSource // Which commit timestamp is primary.  Committer by default.
}

type resolution uint8

const (
	unresolved = resolution(iota)
	resolved
	knownAbsent
)

/*
	What we know about one root.

	A commit id root moves from unresolved to resolved or knownAbsent
	exactly once.  A ref root is checked against the store every time
	it's used; the state only saves re-reading the commit when the ref
	hasn't moved.
*/
type rootState struct {
	state  resolution
	commit *store.Commit
}

type blobKey struct {
	commit   plumbing.Hash
	internal string
}

type Filesystem struct {
	identity string
	registry *Registry // nil if opened without one.
	store    store.Store
	opts     Options

	defaultRoot Path
	emptyPath   Path

	roots   map[rev.Rev]*rootState
	blobs   map[blobKey][]byte // unbounded; lives as long as the filesystem.
	streams map[*DirectoryStream]struct{}
	history *history.History

	closed bool
}

func newFilesystem(identity string, s store.Store, opts Options, registry *Registry) *Filesystem {
	f := &Filesystem{
		identity: identity,
		registry: registry,
		store:    s,
		opts:     opts,
		roots:    map[rev.Rev]*rootState{},
		blobs:    map[blobKey][]byte{},
		streams:  map[*DirectoryStream]struct{}{},
	}
	f.defaultRoot = Path{fs: f, root: rev.Default}
	f.emptyPath = Path{fs: f}
	return f
}

func (f *Filesystem) Filesystem() *Filesystem { return f }

/*
	"file:<absolute dir>" or "mem:<name>".
*/
func (f *Filesystem) Identity() string { return f.identity }

func (f *Filesystem) IsOpen() bool { return !f.closed }

func (f *Filesystem) Monitor() gitfs.Monitor { return f.opts.Monitor }

/*
	The root-only path of the default root.
*/
func (f *Filesystem) DefaultRoot() Path { return f.defaultRoot }

func (f *Filesystem) EmptyPath() Path { return f.emptyPath }

func (f *Filesystem) checkOpen() error {
	if f.closed {
		return errClosed(f.identity)
	}
	return nil
}

func (f *Filesystem) checkOwn(p Path) error {
	if p.fs != f {
		return Errorf(gitfs.ErrUsage, "path %q does not belong to filesystem %s", p, f.identity)
	}
	return nil
}

/*
	Parse a path; more parts are joined onto first with slashes.

	May return errors of category:

	  - `gitfs.ErrParse` -- if the root syntax is malformed
*/
func (f *Filesystem) GetPath(first string, more ...string) (Path, error) {
	return parsePath(f, joinSpec(first, more))
}

/*
	Like GetPath, but the result must be absolute.
*/
func (f *Filesystem) GetAbsolutePath(spec string) (Path, error) {
	p, err := parsePath(f, spec)
	if err != nil {
		return Path{}, err
	}
	if !p.IsAbsolute() {
		return Path{}, Errorf(gitfs.ErrParse, "path %q is not absolute", spec)
	}
	return p, nil
}

/*
	Like GetPath, but the result must be relative (possibly empty).
*/
func (f *Filesystem) GetRelativePath(spec string) (Path, error) {
	p, err := parsePath(f, spec)
	if err != nil {
		return Path{}, err
	}
	if p.IsAbsolute() {
		return Path{}, Errorf(gitfs.ErrParse, "path %q is not relative", spec)
	}
	return p, nil
}

/*
	The root-only path for a rev.
*/
func (f *Filesystem) RootOf(r rev.Rev) Path {
	return Path{fs: f, root: r}
}

/*
	Pin a root to a commit, consulting (and updating) the root state.

	May return errors of category:

	  - `gitfs.ErrNotFound` -- if the ref or commit isn't there
	  - `gitfs.ErrIntegrity` -- if it names something other than a commit
	  - anything the store raises
*/
func (f *Filesystem) resolveRoot(r rev.Rev) (*store.Commit, error) {
	st := f.roots[r]
	if st == nil {
		st = &rootState{}
		f.roots[r] = st
	}
	switch r.Kind() {
	case rev.KindCommitID:
		switch st.state {
		case resolved:
			return st.commit, nil
		case knownAbsent:
			return nil, Errorf(gitfs.ErrNotFound, "commit %s not found", r.ID())
		}
		commit, err := f.store.ReadCommit(r.ID())
		if Category(err) == gitfs.ErrNotFound {
			st.state = knownAbsent
			log.RootAbsent(f.opts.Monitor, r.String())
			return nil, err
		} else if err != nil {
			return nil, err
		}
		st.state, st.commit = resolved, commit
		return commit, nil
	case rev.KindRef:
		id, err := f.store.ResolveRef(r.RefName())
		if Category(err) == gitfs.ErrNotFound {
			if st.state != knownAbsent {
				log.RootAbsent(f.opts.Monitor, r.String())
			}
			st.state, st.commit = knownAbsent, nil
			return nil, err
		} else if err != nil {
			return nil, err
		}
		if st.state == resolved {
			if st.commit.ID == id {
				return st.commit, nil
			}
			log.RefMoved(f.opts.Monitor, string(r.RefName()), st.commit.ID.String(), id.String())
		}
		commit, err := f.store.ReadCommit(id)
		if err != nil {
			return nil, err
		}
		st.state, st.commit = resolved, commit
		return commit, nil
	default:
		return nil, Errorf(gitfs.ErrUsage, "zero rev has no commit")
	}
}

/*
	Walk from a commit's tree down segs, following symlinks as asked.

	Intermediate symlinks are followed only when follow is set; if not,
	the walk stops there with not-found, so nothing is ever reported to
	exist "through" a link that wasn't followed.  The final symlink is
	followed only when follow is set.

	Link targets are interpreted relative to the link's directory, within
	the same commit.  Absolute targets, targets climbing above the root,
	and chains of more than maxSymlinkHops links all count as not found.

	Returns the object and its internal path (after following links).
*/
func (f *Filesystem) walk(commit *store.Commit, segs []string, follow bool) (GitObject, []string, error) {
	cur := GitObject{ID: commit.Tree, Mode: store.ModeTree}
	var at []string
	remaining := append([]string(nil), segs...)
	hops := 0
	for len(remaining) > 0 {
		name := remaining[0]
		remaining = remaining[1:]
		if cur.Mode != store.ModeTree {
			return GitObject{}, nil, Errorf(gitfs.ErrNotADirectory, "%s in %s is a %s, not a directory", strings.Join(at, "/"), commit.ID, cur.Mode)
		}
		entry, err := f.store.ReadTreeEntry(cur.ID, name)
		if Category(err) == gitfs.ErrNotFound {
			return GitObject{}, nil, Errorf(gitfs.ErrNotFound, "%s not found in %s", strings.Join(append(at, name), "/"), commit.ID)
		} else if err != nil {
			return GitObject{}, nil, err
		}
		obj := GitObject{ID: entry.ID, Mode: entry.Mode}
		if obj.Mode != store.ModeSymlink || (len(remaining) == 0 && !follow) {
			cur = obj
			at = append(at, name)
			continue
		}
		linkPath := strings.Join(append(at, name), "/")
		if !follow {
			return GitObject{}, nil, Errorf(gitfs.ErrNotFound, "%s in %s is a symlink, and links are not being followed", linkPath, commit.ID)
		}
		hops++
		if hops > maxSymlinkHops {
			return GitObject{}, nil, Errorf(gitfs.ErrNotFound, "too many levels of symlinks at %s in %s", linkPath, commit.ID)
		}
		target, err := f.store.ReadBlob(obj.ID)
		if err != nil {
			return GitObject{}, nil, err
		}
		next, ok := linkTarget(at, string(target))
		if !ok {
			return GitObject{}, nil, Errorf(gitfs.ErrNotFound, "symlink %s in %s points outside the repository (%q)", linkPath, commit.ID, target)
		}
		remaining = append(next, remaining...)
		cur = GitObject{ID: commit.Tree, Mode: store.ModeTree}
		at = nil
	}
	return cur, at, nil
}

/*
	Where a link found in dir, pointing at target, leads, as segments from
	the root.  False if that's outside the root.
*/
func linkTarget(dir []string, target string) ([]string, bool) {
	if strings.HasPrefix(target, "/") {
		return nil, false
	}
	result := append([]string(nil), dir...)
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(result) == 0 {
				return nil, false
			}
			result = result[:len(result)-1]
		default:
			result = append(result, seg)
		}
	}
	return result, true
}

/*
	Resolve the path's root and walk it.  Relative paths are anchored at
	the default root; segments are normalized lexically first.
*/
func (f *Filesystem) lookup(p Path, follow bool) (*store.Commit, GitObject, []string, error) {
	if err := f.checkOpen(); err != nil {
		return nil, GitObject{}, nil, err
	}
	if err := f.checkOwn(p); err != nil {
		return nil, GitObject{}, nil, err
	}
	abs := p.ToAbsolute().Normalize()
	commit, err := f.resolveRoot(abs.root)
	if err != nil {
		return nil, GitObject{}, nil, err
	}
	obj, at, err := f.walk(commit, abs.segs, follow)
	if err != nil {
		return nil, GitObject{}, nil, err
	}
	return commit, obj, at, nil
}

/*
	Find what a path points at.

	May return errors of category:

	  - `gitfs.ErrNotFound` -- missing root, missing segment, or a symlink not followed on the way
	  - `gitfs.ErrNotADirectory` -- descending through a non-tree
	  - `gitfs.ErrClosed` -- after Close
	  - `gitfs.ErrUsage` -- for a path from another filesystem
*/
func (f *Filesystem) Lookup(p Path, follow bool) (_ GitObject, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	_, obj, _, err := f.lookup(p, follow)
	return obj, err
}

/*
	Content of a blob, cached by commit and internal path.
*/
func (f *Filesystem) content(commit *store.Commit, at []string, obj GitObject) ([]byte, error) {
	key := blobKey{commit.ID, strings.Join(at, "/")}
	if body, ok := f.blobs[key]; ok {
		return body, nil
	}
	body, err := f.store.ReadBlob(obj.ID)
	if err != nil {
		return nil, err
	}
	f.blobs[key] = body
	return body, nil
}

func (f *Filesystem) Stat(p Path, follow bool) (_ Metadata, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	commit, obj, at, err := f.lookup(p, follow)
	if err != nil {
		return Metadata{}, err
	}
	meta := Metadata{
		Mode:    obj.Mode,
		ID:      obj.ID,
		ModTime: f.primaryDate(commit),
	}
	if len(at) > 0 {
		meta.Name = at[len(at)-1]
	}
	switch obj.Mode {
	case store.ModeFile, store.ModeExecutable, store.ModeSymlink:
		body, err := f.content(commit, at, obj)
		if err != nil {
			return Metadata{}, err
		}
		meta.Size = int64(len(body))
		if obj.Mode == store.ModeSymlink {
			meta.Linkname = string(body)
		}
	}
	return meta, nil
}

func (f *Filesystem) primaryDate(c *store.Commit) time.Time {
	if f.opts.DateSource == history.AuthorDate {
		return c.Author.When
	}
	return c.Committer.When
}

/*
	Whether anything is at a path.  Absence is (false, nil); other failures
	(a closed filesystem, a corrupt object) are still errors.
*/
func (f *Filesystem) Exists(p Path, follow bool) (_ bool, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	_, _, _, err = f.lookup(p, follow)
	if IsAbsent(err) {
		return false, nil
	}
	return err == nil, err
}

/*
	The content of the file at a path, following symlinks.
	The returned slice is the caller's.

	May return errors of category:

	  - `gitfs.ErrNotAFile` -- if the path is a tree or a submodule
	  - anything Lookup returns
*/
func (f *Filesystem) ReadBytes(p Path) (_ []byte, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	commit, obj, at, err := f.lookup(p, true)
	if err != nil {
		return nil, err
	}
	switch obj.Mode {
	case store.ModeFile, store.ModeExecutable:
		body, err := f.content(commit, at, obj)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), body...), nil
	default:
		return nil, Errorf(gitfs.ErrNotAFile, "%s is a %s, not a file", p, obj.Mode)
	}
}

func (f *Filesystem) ReadString(p Path) (string, error) {
	body, err := f.ReadBytes(p)
	return string(body), err
}

/*
	The target of the symlink at a path.

	May return errors of category:

	  - `gitfs.ErrUsage` -- if the path is not a symlink
	  - anything Lookup returns
*/
func (f *Filesystem) ReadLink(p Path) (_ string, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	commit, obj, at, err := f.lookup(p, false)
	if err != nil {
		return "", err
	}
	if obj.Mode != store.ModeSymlink {
		return "", Errorf(gitfs.ErrUsage, "%s is a %s, not a symlink", p, obj.Mode)
	}
	body, err := f.content(commit, at, obj)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

/*
	Every commit reachable from any ref, as root-only paths, ordered by
	primary date (ties broken ancestors-first, then by id).
*/
func (f *Filesystem) ListRoots() (_ []Path, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	h, err := f.History()
	if err != nil {
		return nil, err
	}
	ordered := h.Ordered()
	result := make([]Path, len(ordered))
	for i, id := range ordered {
		result[i] = f.RootOf(rev.CommitID(id))
	}
	return result, nil
}

/*
	Every "refs/..." reference that leads to a commit, as root-only paths, sorted by name.
*/
func (f *Filesystem) Refs() (_ []Path, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	refs, err := f.store.Refs()
	if err != nil {
		return nil, err
	}
	result := make([]Path, 0, len(refs))
	for _, ref := range refs {
		r, err := rev.Ref(string(ref.Name))
		if err != nil {
			continue // git allows names we don't (backslashes); they're unreachable as roots.
		}
		result = append(result, f.RootOf(r))
	}
	return result, nil
}

/*
	The commit a path's root currently resolves to.
*/
func (f *Filesystem) Commit(root Path) (_ *store.Commit, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if err := f.checkOwn(root); err != nil {
		return nil, err
	}
	return f.resolveRoot(root.ToAbsolute().root)
}

/*
	The changes between the trees at two paths (usually two root-only paths).
	Both must be directories.
*/
func (f *Filesystem) Diff(a, b Path) (_ []store.Change, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	trees := [2]plumbing.Hash{}
	for i, p := range []Path{a, b} {
		_, obj, _, err := f.lookup(p, true)
		if err != nil {
			return nil, err
		}
		if obj.Mode != store.ModeTree {
			return nil, Errorf(gitfs.ErrNotADirectory, "cannot diff %s: it is a %s", p, obj.Mode)
		}
		trees[i] = obj.ID
	}
	return f.store.DiffTrees(trees[0], trees[1])
}

/*
	The memoized commit graph of the whole repository.
*/
func (f *Filesystem) History() (_ *history.History, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if f.history == nil {
		h, err := history.Build(f.store, f.opts.DateSource, f.opts.Monitor)
		if err != nil {
			return nil, err
		}
		f.history = h
	}
	return f.history, nil
}

func (f *Filesystem) ReconcileDates(observed map[plumbing.Hash]time.Time) (*history.Reconciliation, error) {
	h, err := f.History()
	if err != nil {
		return nil, err
	}
	return h.Reconcile(observed)
}

/*
	Close every open stream, release the store, and leave the registry.

	Every release is attempted even if an earlier one fails; failures are
	aggregated into one error.  Closing twice is a no-op.
*/
func (f *Filesystem) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	failures := map[string]string{}
	streams := make([]*DirectoryStream, 0, len(f.streams))
	for s := range f.streams {
		streams = append(streams, s)
	}
	sort.Slice(streams, func(i, j int) bool { return streams[i].dir.Compare(streams[j].dir) < 0 })
	for i, s := range streams {
		if err := s.Close(); err != nil {
			failures[fmt.Sprintf("stream %d (%s)", i, s.dir)] = err.Error()
		}
	}
	if err := f.store.Close(); err != nil {
		failures["store"] = err.Error()
	}
	f.blobs = nil
	f.roots = nil
	f.history = nil
	if f.registry != nil {
		f.registry.deregister(f)
	}
	var err error
	if len(failures) > 0 {
		err = ErrorDetailed(gitfs.ErrIO, "failed to release filesystem "+f.identity, failures)
	}
	log.FilesystemClosed(f.opts.Monitor, f.identity, err)
	return err
}
