/*
	The filter package wraps a filesystem so that only commits accepted by
	a predicate are visible.

	Hidden commits vanish everywhere a root is involved: paths under them
	are not found, they are missing from root and ref listings, and they
	are missing from the commit graph.  The graph keeps the ancestry
	between the commits that remain: x is an ancestor of y in the filtered
	graph exactly when it was in the full one, and the filtered graph
	carries no edge that is implied by others.
*/
package filter

import (
	"strings"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/history"
	"go.polydawn.net/gitfs/log"
	"go.polydawn.net/gitfs/rev"
	"go.polydawn.net/gitfs/store"
)

/*
	Decides whether a commit is visible.  Must be a pure function of the
	commit; verdicts are cached per commit id.
*/
type Predicate func(*store.Commit) bool

func AcceptAll(*store.Commit) bool { return true }

/*
	Accepts commits whose author name or email is who (email compared
	without regard to case).
*/
func AuthoredBy(who string) Predicate {
	return func(c *store.Commit) bool {
		return c.Author.Name == who || strings.EqualFold(c.Author.Email, who)
	}
}

func Not(p Predicate) Predicate {
	return func(c *store.Commit) bool { return !p(c) }
}

/*
	Overlay is an fs.View over a Filesystem, hiding rejected commits.

	Like the Filesystem it wraps, it is not safe for concurrent use.
*/
type Overlay struct {
	fs       *fs.Filesystem
	accept   Predicate
	verdicts map[plumbing.Hash]bool
	history  *history.History // lazily computed.
}

var _ fs.View = &Overlay{}

func New(f *fs.Filesystem, accept Predicate) *Overlay {
	return &Overlay{
		fs:       f,
		accept:   accept,
		verdicts: map[plumbing.Hash]bool{},
	}
}

func (o *Overlay) Filesystem() *fs.Filesystem { return o.fs }

func (o *Overlay) accepts(c *store.Commit) bool {
	verdict, ok := o.verdicts[c.ID]
	if !ok {
		verdict = o.accept(c)
		o.verdicts[c.ID] = verdict
	}
	return verdict
}

/*
	Resolve a path's root and reject it if the commit is hidden.
*/
func (o *Overlay) check(p fs.Path) (*store.Commit, error) {
	c, err := o.fs.Commit(p)
	if err != nil {
		return nil, err
	}
	if !o.accepts(c) {
		return nil, Errorf(gitfs.ErrNotFound, "root of %s is commit %s, which is filtered out", p, c.ID)
	}
	return c, nil
}

func (o *Overlay) ListRoots() (_ []fs.Path, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	h, err := o.History()
	if err != nil {
		return nil, err
	}
	ordered := h.Ordered()
	result := make([]fs.Path, len(ordered))
	for i, id := range ordered {
		result[i] = o.fs.RootOf(rev.CommitID(id))
	}
	return result, nil
}

/*
	The refs whose current commit is visible.
*/
func (o *Overlay) Refs() (_ []fs.Path, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	refs, err := o.fs.Refs()
	if err != nil {
		return nil, err
	}
	result := make([]fs.Path, 0, len(refs))
	for _, ref := range refs {
		switch _, err := o.check(ref); {
		case err == nil:
			result = append(result, ref)
		case Category(err) == gitfs.ErrNotFound:
			// hidden, or deleted since it was listed.
		default:
			return nil, err
		}
	}
	return result, nil
}

func (o *Overlay) Lookup(p fs.Path, follow bool) (_ fs.GitObject, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(p); err != nil {
		return fs.GitObject{}, err
	}
	return o.fs.Lookup(p, follow)
}

func (o *Overlay) Stat(p fs.Path, follow bool) (_ fs.Metadata, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(p); err != nil {
		return fs.Metadata{}, err
	}
	return o.fs.Stat(p, follow)
}

func (o *Overlay) Exists(p fs.Path, follow bool) (_ bool, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(p); err != nil {
		if fs.IsAbsent(err) {
			return false, nil
		}
		return false, err
	}
	return o.fs.Exists(p, follow)
}

func (o *Overlay) ReadBytes(p fs.Path) (_ []byte, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(p); err != nil {
		return nil, err
	}
	return o.fs.ReadBytes(p)
}

func (o *Overlay) ReadLink(p fs.Path) (_ string, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(p); err != nil {
		return "", err
	}
	return o.fs.ReadLink(p)
}

/*
	Checked when the stream is made; a ref root that later moves onto a
	hidden commit is not rechecked while the stream lives.
*/
func (o *Overlay) NewDirectoryStream(dir fs.Path, filter fs.Filter) (_ *fs.DirectoryStream, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(dir); err != nil {
		return nil, err
	}
	return o.fs.NewDirectoryStream(dir, filter)
}

func (o *Overlay) Commit(root fs.Path) (_ *store.Commit, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	return o.check(root)
}

func (o *Overlay) Diff(a, b fs.Path) (_ []store.Change, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	for _, p := range []fs.Path{a, b} {
		if _, err := o.check(p); err != nil {
			return nil, err
		}
	}
	return o.fs.Diff(a, b)
}

func (o *Overlay) Submodules(root fs.Path) (_ []fs.Submodule, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if _, err := o.check(root); err != nil {
		return nil, err
	}
	return o.fs.Submodules(root)
}

/*
	The filtered commit graph: the full ancestry closed transitively,
	restricted to visible commits, then transitively reduced.
	Memoized.
*/
func (o *Overlay) History() (_ *history.History, err error) {
	defer RequireErrorHasCategory(&err, gitfs.ErrorCategory(""))
	if o.history != nil {
		return o.history, nil
	}
	full, err := o.fs.History()
	if err != nil {
		return nil, err
	}
	visible := map[plumbing.Hash]bool{}
	for _, id := range full.Commits() {
		c, err := o.fs.Commit(o.fs.RootOf(rev.CommitID(id)))
		if err != nil {
			return nil, err
		}
		visible[id] = o.accepts(c)
	}
	reduced, err := full.Closure().
		Induced(func(id plumbing.Hash) bool { return visible[id] }).
		TransitiveReduction()
	if err != nil {
		return nil, err
	}
	h, err := history.New(reduced, full.Dates(), full.Source(), o.fs.Monitor())
	if err != nil {
		return nil, err
	}
	log.HistoryFiltered(o.fs.Monitor(), reduced.Len(), full.Graph().Len())
	o.history = h
	return h, nil
}

/*
	Reconcile against the filtered graph.  Observations of hidden commits
	are ignored.
*/
func (o *Overlay) ReconcileDates(observed map[plumbing.Hash]time.Time) (*history.Reconciliation, error) {
	h, err := o.History()
	if err != nil {
		return nil, err
	}
	return h.Reconcile(observed)
}
