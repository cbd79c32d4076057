package testutil

import (
	"fmt"
	"sort"
	"strings"
	"time"

	srcd_git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/storage"
	"gopkg.in/src-d/go-git.v4/storage/memory"
)

/*
	Commonly used fixture times: T0 plus some hours.
*/
var T0 = time.Date(2020, time.March, 14, 12, 0, 0, 0, time.UTC)

func Hours(n int) time.Time {
	return T0.Add(time.Duration(n) * time.Hour)
}

/*
	RepoBuilder writes objects and refs straight into go-git storage,
	so fixtures need neither a worktree nor a git binary.

	All methods panic on failure; they're for tests.
*/
type RepoBuilder struct {
	Storer storage.Storer
}

/*
	A fresh in-memory repository with HEAD pointing at refs/heads/main.
*/
func NewMemoryRepo() *RepoBuilder {
	store := memory.NewStorage()
	must(store.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main")))
	return &RepoBuilder{Storer: store}
}

/*
	A fresh on-disk repository (bare or with a worktree) at dir.
*/
func NewDiskRepo(dir string, bare bool) *RepoBuilder {
	repo, err := srcd_git.PlainInit(dir, bare)
	must(err)
	must(repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, "refs/heads/main")))
	return &RepoBuilder{Storer: repo.Storer}
}

func (b *RepoBuilder) Blob(content string) plumbing.Hash {
	obj := b.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	must(err)
	_, err = w.Write([]byte(content))
	must(err)
	must(w.Close())
	hash, err := b.Storer.SetEncodedObject(obj)
	must(err)
	return hash
}

/*
	Write a tree from raw entries; entries are put into git's tree order first.
*/
func (b *RepoBuilder) Tree(entries ...object.TreeEntry) plumbing.Hash {
	sorted := append([]object.TreeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})
	obj := b.Storer.NewEncodedObject()
	must((&object.Tree{Entries: sorted}).Encode(obj))
	hash, err := b.Storer.SetEncodedObject(obj)
	must(err)
	return hash
}

func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

/*
	A file to place in a tree built by Files.
*/
type File struct {
	Content string
	Mode    filemode.FileMode // zero means regular.
	Hash    plumbing.Hash     // only for submodule gitlinks.
}

/*
	Build nested trees from a flat map of slash-separated paths.
	Returns the root tree's hash.
*/
func (b *RepoBuilder) Files(files map[string]File) plumbing.Hash {
	type dir struct {
		files map[string]File
		dirs  map[string]map[string]File
	}
	d := dir{map[string]File{}, map[string]map[string]File{}}
	for name, f := range files {
		if i := strings.IndexByte(name, '/'); i >= 0 {
			sub := d.dirs[name[:i]]
			if sub == nil {
				sub = map[string]File{}
				d.dirs[name[:i]] = sub
			}
			sub[name[i+1:]] = f
			continue
		}
		d.files[name] = f
	}
	var entries []object.TreeEntry
	for name, f := range d.files {
		mode := f.Mode
		if mode == filemode.Empty {
			mode = filemode.Regular
		}
		hash := f.Hash
		if mode != filemode.Submodule {
			hash = b.Blob(f.Content)
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: mode, Hash: hash})
	}
	for name, sub := range d.dirs {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: b.Files(sub)})
	}
	return b.Tree(entries...)
}

/*
	Everything needed to write one commit.
	Zero times default to T0; a zero Author defaults to the Committer.
*/
type CommitSpec struct {
	Tree          plumbing.Hash
	Parents       []plumbing.Hash
	Message       string
	AuthorName    string
	AuthorEmail   string
	AuthorTime    time.Time
	CommitterTime time.Time
}

func (b *RepoBuilder) CommitSpec(spec CommitSpec) plumbing.Hash {
	if spec.CommitterTime.IsZero() {
		spec.CommitterTime = T0
	}
	if spec.AuthorTime.IsZero() {
		spec.AuthorTime = spec.CommitterTime
	}
	if spec.AuthorName == "" {
		spec.AuthorName = "Tester"
	}
	if spec.AuthorEmail == "" {
		spec.AuthorEmail = "tester@example.org"
	}
	if spec.Message == "" {
		spec.Message = "commit\n"
	}
	if spec.Tree.IsZero() {
		spec.Tree = b.Tree()
	}
	c := &object.Commit{
		Author:       object.Signature{Name: spec.AuthorName, Email: spec.AuthorEmail, When: spec.AuthorTime},
		Committer:    object.Signature{Name: "Committer", Email: "committer@example.org", When: spec.CommitterTime},
		Message:      spec.Message,
		TreeHash:     spec.Tree,
		ParentHashes: spec.Parents,
	}
	obj := b.Storer.NewEncodedObject()
	must(c.Encode(obj))
	hash, err := b.Storer.SetEncodedObject(obj)
	must(err)
	return hash
}

/*
	Shorthand: a commit with the given tree, committer time, and parents.
	The message is derived from the time so otherwise-identical commits differ.
*/
func (b *RepoBuilder) Commit(tree plumbing.Hash, when time.Time, parents ...plumbing.Hash) plumbing.Hash {
	return b.CommitSpec(CommitSpec{
		Tree:          tree,
		Parents:       parents,
		Message:       fmt.Sprintf("commit at %s\n", when.Format(time.RFC3339)),
		CommitterTime: when,
	})
}

func (b *RepoBuilder) SetRef(name string, target plumbing.Hash) {
	must(b.Storer.SetReference(plumbing.NewHashReference(plumbing.ReferenceName(name), target)))
}

func (b *RepoBuilder) SetSymbolicRef(name string, target string) {
	must(b.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.ReferenceName(name), plumbing.ReferenceName(target))))
}

/*
	Write an annotated tag object pointing at target, and a ref "refs/tags/<name>" to it.
*/
func (b *RepoBuilder) AnnotatedTag(name string, target plumbing.Hash, targetType plumbing.ObjectType) plumbing.Hash {
	tag := &object.Tag{
		Name:       name,
		Tagger:     object.Signature{Name: "Tagger", Email: "tagger@example.org", When: T0},
		Message:    "tag " + name + "\n",
		TargetType: targetType,
		Target:     target,
	}
	obj := b.Storer.NewEncodedObject()
	must(tag.Encode(obj))
	hash, err := b.Storer.SetEncodedObject(obj)
	must(err)
	b.SetRef("refs/tags/"+name, hash)
	return hash
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
