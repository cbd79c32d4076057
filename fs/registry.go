package fs

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/storage"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/log"
	"go.polydawn.net/gitfs/store"
)

/*
	Registry holds at most one open Filesystem per repository identity.

	Filesystems cache aggressively and assume nobody else is reading
	through the same handle, so a second open of a live identity is
	refused rather than shared.  Closing a Filesystem takes it out of
	its registry; opening the identity again afterwards starts cold.

	The Registry itself is safe for concurrent use; the Filesystems it
	hands out are not.
*/
type Registry struct {
	mu   sync.Mutex
	open map[string]*Filesystem
}

func NewRegistry() *Registry {
	return &Registry{open: map[string]*Filesystem{}}
}

var defaultRegistry = NewRegistry()

/*
	The process-wide registry, for callers with no reason to make their own.
*/
func DefaultRegistry() *Registry {
	return defaultRegistry
}

/*
	Open the repository in a directory (bare, or a worktree with a `.git`).
	Relative dirs are made absolute against the working directory.

	May return errors of category:

	  - `gitfs.ErrAlreadyExists` -- if that directory is already open here
	  - `gitfs.ErrNotFound` -- if there is no repository there
	  - `gitfs.ErrIO` -- for failures inspecting the directory
*/
func (r *Registry) OpenDir(dir string, opts Options) (*Filesystem, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "cannot make %q absolute: %s", dir, err)
	}
	identity := identityFilePrefix + abs
	f, err := r.admitWith(identity, opts, func() (store.Store, error) {
		return store.OpenDir(abs)
	})
	if err != nil {
		return nil, err
	}
	log.FilesystemOpened(opts.Monitor, identity)
	return f, nil
}

/*
	Open an in-memory (or otherwise already opened) go-git storage under a name.
*/
func (r *Registry) OpenMemory(name string, storer storage.Storer, opts Options) (*Filesystem, error) {
	if name == "" {
		return nil, Errorf(gitfs.ErrUsage, "in-memory repositories need a name")
	}
	return r.OpenStore(identityMemPrefix+name, store.New(storer), opts)
}

/*
	Open any Store under an explicit identity, which must be
	"file:<absolute dir>" or "mem:<name>".
	On failure the store is left open; the caller still owns it.
*/
func (r *Registry) OpenStore(identity string, s store.Store, opts Options) (*Filesystem, error) {
	switch {
	case strings.HasPrefix(identity, identityFilePrefix):
		if !filepath.IsAbs(strings.TrimPrefix(identity, identityFilePrefix)) {
			return nil, Errorf(gitfs.ErrUsage, "identity %q must name an absolute directory", identity)
		}
	case strings.HasPrefix(identity, identityMemPrefix):
		if identity == identityMemPrefix {
			return nil, Errorf(gitfs.ErrUsage, "identity %q has an empty name", identity)
		}
	default:
		return nil, Errorf(gitfs.ErrUsage, "identity %q must start with %q or %q", identity, identityFilePrefix, identityMemPrefix)
	}
	f, err := r.admitWith(identity, opts, func() (store.Store, error) {
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	log.FilesystemOpened(opts.Monitor, identity)
	return f, nil
}

/*
	Claim the identity and build its Filesystem, all under the lock.
	Nothing here may talk to the monitor: its channel can block.
*/
func (r *Registry) admitWith(identity string, opts Options, open func() (store.Store, error)) (*Filesystem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[identity]; exists {
		return nil, Errorf(gitfs.ErrAlreadyExists, "filesystem %s is already open", identity)
	}
	s, err := open()
	if err != nil {
		return nil, err
	}
	f := newFilesystem(identity, s, opts, r)
	r.open[identity] = f
	return f, nil
}

func (r *Registry) deregister(f *Filesystem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open[f.identity] == f {
		delete(r.open, f.identity)
	}
}

/*
	The open Filesystem for an identity.
*/
func (r *Registry) Get(identity string) (*Filesystem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.open[identity]
	if !ok {
		return nil, Errorf(gitfs.ErrNotFound, "no open filesystem %s", identity)
	}
	return f, nil
}

/*
	Identities of every open Filesystem, sorted.
*/
func (r *Registry) Identities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]string, 0, len(r.open))
	for id := range r.open {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}

/*
	Turn a URI made by Path.URI back into the Path, on the Filesystem
	that is open for it.

	May return errors of category:

	  - `gitfs.ErrParse` -- if the URI is malformed
	  - `gitfs.ErrNotFound` -- if no filesystem is open for it
*/
func (r *Registry) ParsePath(uri string) (Path, error) {
	identity, root, internal, absolute, err := parseURI(uri)
	if err != nil {
		return Path{}, err
	}
	f, err := r.Get(identity)
	if err != nil {
		return Path{}, err
	}
	if absolute {
		return Path{fs: f, root: root, segs: splitSegments(internal)}, nil
	}
	return Path{fs: f, segs: splitSegments(internal)}, nil
}
