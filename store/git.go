package store

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	. "github.com/warpfork/go-errcat"
	srcd_billy "gopkg.in/src-d/go-billy.v4"
	srcd_osfs "gopkg.in/src-d/go-billy.v4/osfs"
	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/cache"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/storer"
	"gopkg.in/src-d/go-git.v4/storage"
	"gopkg.in/src-d/go-git.v4/storage/filesystem"
	"gopkg.in/src-d/go-git.v4/utils/merkletrie"

	"go.polydawn.net/gitfs"
)

var (
	_ Store = &GitStore{}
)

const dotGit = ".git"

// Annotated tags pointing at annotated tags are legal; chains this long are not sane.
const maxPeelDepth = 16

/*
	GitStore reads objects and refs out of go-git storage.

	It holds no caches of its own beyond what the storage layer keeps;
	the filesystem facade owns the interesting caches.
*/
type GitStore struct {
	store  storage.Storer // git object storage
	closed bool
}

/*
	Wrap an already-opened go-git storage.
	No validation is performed; an empty storage is simply a repository with no refs.
*/
func New(store storage.Storer) *GitStore {
	return &GitStore{store: store}
}

/*
	Open the repository stored at an absolute directory path.

	The directory may be a bare repository, or a working tree containing
	a `.git` directory; either way, only the object database is used.

	May return errors of category:

	  - `gitfs.ErrUsage` -- for relative paths
	  - `gitfs.ErrNotFound` -- if there is no repository there
	  - `gitfs.ErrIO` -- if the directory could not be inspected
*/
func OpenDir(dir string) (*GitStore, error) {
	if !filepath.IsAbs(dir) {
		return nil, Errorf(gitfs.ErrUsage, "repository path %q is not absolute", dir)
	}
	var bfs srcd_billy.Filesystem = srcd_osfs.New(dir)
	fi, err := bfs.Stat(dotGit)
	switch {
	case err == nil && fi.IsDir():
		bfs, err = bfs.Chroot(dotGit)
		if err != nil {
			return nil, Errorf(gitfs.ErrIO, "could not open %s: %s", filepath.Join(dir, dotGit), err)
		}
	case err == nil:
		// A `.git` file is a gitdir pointer (worktrees, submodules); not supported.
		return nil, Errorf(gitfs.ErrNotFound, "%s is a gitdir link, not a repository", filepath.Join(dir, dotGit))
	case os.IsNotExist(err):
		// Probably bare.  Let the open below decide.
	default:
		return nil, Errorf(gitfs.ErrIO, "could not inspect %s: %s", dir, err)
	}
	store := filesystem.NewStorage(bfs, cache.NewObjectLRUDefault())
	if _, err := srcd_git.Open(store, nil); err == srcd_git.ErrRepositoryNotExists {
		return nil, Errorf(gitfs.ErrNotFound, "no git repository at %s", dir)
	} else if err != nil {
		return nil, Errorf(gitfs.ErrIO, "unable to open repository at %s: %s", dir, err)
	}
	return &GitStore{store: store}, nil
}

func (s *GitStore) checkOpen() error {
	if s.closed {
		return Errorf(gitfs.ErrClosed, "object store is closed")
	}
	return nil
}

/*
	Fetch an object and insist on its type.
*/
func (s *GitStore) readObject(id plumbing.Hash, want plumbing.ObjectType) (plumbing.EncodedObject, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	obj, err := s.store.EncodedObject(plumbing.AnyObject, id)
	if err == plumbing.ErrObjectNotFound {
		return nil, Errorf(gitfs.ErrNotFound, "%s %s not found", want, id)
	} else if err != nil {
		return nil, Errorf(gitfs.ErrIO, "failed to read object %s: %s", id, err)
	}
	if want != plumbing.AnyObject && obj.Type() != want {
		return nil, Errorf(gitfs.ErrIntegrity, "object %s is a %s, not a %s", id, obj.Type(), want)
	}
	return obj, nil
}

func (s *GitStore) ResolveRef(name plumbing.ReferenceName) (plumbing.Hash, error) {
	if err := s.checkOpen(); err != nil {
		return plumbing.ZeroHash, err
	}
	ref, err := storer.ResolveReference(s.store, name)
	if err == plumbing.ErrReferenceNotFound {
		return plumbing.ZeroHash, Errorf(gitfs.ErrNotFound, "ref %s not found", name)
	} else if err != nil {
		return plumbing.ZeroHash, Errorf(gitfs.ErrIO, "failed to resolve ref %s: %s", name, err)
	}
	id, typ, err := s.peel(ref.Hash())
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if typ != plumbing.CommitObject {
		return plumbing.ZeroHash, Errorf(gitfs.ErrIntegrity, "ref %s points to a %s, not a commit", name, typ)
	}
	return id, nil
}

/*
	Follow annotated tags down to whatever they finally point at.
*/
func (s *GitStore) peel(id plumbing.Hash) (plumbing.Hash, plumbing.ObjectType, error) {
	for i := 0; i < maxPeelDepth; i++ {
		obj, err := s.readObject(id, plumbing.AnyObject)
		if err != nil {
			return plumbing.ZeroHash, plumbing.InvalidObject, err
		}
		if obj.Type() != plumbing.TagObject {
			return id, obj.Type(), nil
		}
		tag, err := object.DecodeTag(s.store, obj)
		if err != nil {
			return plumbing.ZeroHash, plumbing.InvalidObject, Errorf(gitfs.ErrCorrupt, "failed to decode tag %s: %s", id, err)
		}
		id = tag.Target
	}
	return plumbing.ZeroHash, plumbing.InvalidObject, Errorf(gitfs.ErrIntegrity, "tag chain deeper than %d at %s", maxPeelDepth, id)
}

func (s *GitStore) Refs() ([]Ref, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	iter, err := s.store.IterReferences()
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "failed to list refs: %s", err)
	}
	var names []plumbing.ReferenceName
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(ref.Name().String(), "refs/") {
			names = append(names, ref.Name())
		}
		return nil
	})
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "failed to list refs: %s", err)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	result := make([]Ref, 0, len(names))
	for _, name := range names {
		ref, err := storer.ResolveReference(s.store, name)
		if err == plumbing.ErrReferenceNotFound {
			continue // dangling symbolic ref.
		} else if err != nil {
			return nil, Errorf(gitfs.ErrIO, "failed to resolve ref %s: %s", name, err)
		}
		id, typ, err := s.peel(ref.Hash())
		if err != nil {
			return nil, err
		}
		if typ != plumbing.CommitObject {
			continue // tags of trees and blobs exist; they have no history.
		}
		result = append(result, Ref{Name: name, Commit: id})
	}
	return result, nil
}

func (s *GitStore) ReadCommit(id plumbing.Hash) (*Commit, error) {
	obj, err := s.readObject(id, plumbing.CommitObject)
	if err != nil {
		return nil, err
	}
	c, err := object.DecodeCommit(s.store, obj)
	if err != nil {
		return nil, Errorf(gitfs.ErrCorrupt, "failed to decode commit %s: %s", id, err)
	}
	return &Commit{
		ID:        id,
		Tree:      c.TreeHash,
		Parents:   append([]plumbing.Hash(nil), c.ParentHashes...),
		Author:    Signature{c.Author.Name, c.Author.Email, c.Author.When},
		Committer: Signature{c.Committer.Name, c.Committer.Email, c.Committer.When},
		Message:   c.Message,
	}, nil
}

func (s *GitStore) readTree(id plumbing.Hash) (*object.Tree, error) {
	obj, err := s.readObject(id, plumbing.TreeObject)
	if err != nil {
		return nil, err
	}
	tree, err := object.DecodeTree(s.store, obj)
	if err != nil {
		return nil, Errorf(gitfs.ErrCorrupt, "failed to decode tree %s: %s", id, err)
	}
	return tree, nil
}

func (s *GitStore) ReadTreeEntry(tree plumbing.Hash, name string) (TreeEntry, error) {
	t, err := s.readTree(tree)
	if err != nil {
		return TreeEntry{}, err
	}
	for _, e := range t.Entries {
		if e.Name != name {
			continue
		}
		mode, err := convertMode(e.Mode)
		if err != nil {
			return TreeEntry{}, Errorf(gitfs.ErrCorrupt, "tree %s entry %q: %s", tree, name, err)
		}
		return TreeEntry{Name: e.Name, ID: e.Hash, Mode: mode}, nil
	}
	return TreeEntry{}, Errorf(gitfs.ErrNotFound, "no entry %q in tree %s", name, tree)
}

func (s *GitStore) ListTree(tree plumbing.Hash) ([]TreeEntry, error) {
	t, err := s.readTree(tree)
	if err != nil {
		return nil, err
	}
	result := make([]TreeEntry, len(t.Entries))
	for i, e := range t.Entries {
		mode, err := convertMode(e.Mode)
		if err != nil {
			return nil, Errorf(gitfs.ErrCorrupt, "tree %s entry %q: %s", tree, e.Name, err)
		}
		result[i] = TreeEntry{Name: e.Name, ID: e.Hash, Mode: mode}
	}
	return result, nil
}

func (s *GitStore) ReadBlob(id plumbing.Hash) ([]byte, error) {
	obj, err := s.readObject(id, plumbing.BlobObject)
	if err != nil {
		return nil, err
	}
	blob, err := object.DecodeBlob(obj)
	if err != nil {
		return nil, Errorf(gitfs.ErrCorrupt, "failed to decode blob %s: %s", id, err)
	}
	reader, err := blob.Reader()
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "failed to open blob %s: %s", id, err)
	}
	defer reader.Close()
	body, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "failed to read blob %s: %s", id, err)
	}
	return body, nil
}

func (s *GitStore) DiffTrees(from, to plumbing.Hash) ([]Change, error) {
	a, err := s.readTree(from)
	if err != nil {
		return nil, err
	}
	b, err := s.readTree(to)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTree(a, b)
	if err == plumbing.ErrObjectNotFound {
		return nil, Errorf(gitfs.ErrNotFound, "diffing %s..%s: %s", from, to, err)
	} else if err != nil {
		return nil, Errorf(gitfs.ErrIO, "diffing %s..%s: %s", from, to, err)
	}
	result := make([]Change, 0, len(changes))
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			return nil, Errorf(gitfs.ErrCorrupt, "diffing %s..%s: %s", from, to, err)
		}
		change := Change{From: c.From.Name, To: c.To.Name}
		switch action {
		case merkletrie.Insert:
			change.Action = Insert
		case merkletrie.Delete:
			change.Action = Delete
		case merkletrie.Modify:
			change.Action = Modify
		}
		result = append(result, change)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return changePath(result[i]) < changePath(result[j])
	})
	return result, nil
}

func changePath(c Change) string {
	if c.To != "" {
		return c.To
	}
	return c.From
}

/*
	Close releases the storage if it holds any descriptors.
	Safe to call more than once.
*/
func (s *GitStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return Errorf(gitfs.ErrIO, "failed to release object storage: %s", err)
		}
	}
	return nil
}

func convertMode(m filemode.FileMode) (Mode, error) {
	switch m {
	case filemode.Dir:
		return ModeTree, nil
	case filemode.Regular, filemode.Deprecated:
		return ModeFile, nil
	case filemode.Executable:
		return ModeExecutable, nil
	case filemode.Symlink:
		return ModeSymlink, nil
	case filemode.Submodule:
		return ModeSubmodule, nil
	default:
		return 0, Errorf(gitfs.ErrCorrupt, "unknown git filemode %s", m)
	}
}
