package fs_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/fs/tests"
	"go.polydawn.net/gitfs/history"
	"go.polydawn.net/gitfs/store"
	"go.polydawn.net/gitfs/testutil"
)

func mustPath(f *fs.Filesystem, spec string) fs.Path {
	p, err := f.GetPath(spec)
	if err != nil {
		panic(err)
	}
	return p
}

func TestFilesystemInMemory(t *testing.T) {
	Convey("Given a filesystem over an in-memory repository", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		f, err := fs.NewRegistry().OpenMemory("fixture", fx.Repo.Storer, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()

		tests.CheckAll(f, fx)
	})
}

func TestFilesystemOnDisk(t *testing.T) {
	Convey("Given a filesystem over a repository on disk", t, func() {
		testutil.WithTmpdir(func(tmpDir string) {
			dir := filepath.Join(tmpDir, "repo")
			fx := tests.BuildFixture(testutil.NewDiskRepo(dir, true))
			f, err := fs.NewRegistry().OpenDir(dir, fs.Options{})
			So(err, ShouldBeNil)
			defer f.Close()

			So(f.Identity(), ShouldEqual, "file:"+dir)
			tests.CheckAll(f, fx)
		})
	})
}

func TestRootResolution(t *testing.T) {
	Convey("Given a filesystem whose refs move", t, func() {
		repo := testutil.NewMemoryRepo()
		one := repo.Commit(repo.Files(map[string]testutil.File{"v": {Content: "one"}}), testutil.Hours(0))
		two := repo.Commit(repo.Files(map[string]testutil.File{"v": {Content: "two"}}), testutil.Hours(1), one)
		repo.SetRef("refs/heads/main", one)
		events := make(chan gitfs.Event, 100)
		f, err := fs.NewRegistry().OpenMemory("moving", repo.Storer, fs.Options{Monitor: gitfs.Monitor{Chan: events}})
		So(err, ShouldBeNil)
		defer f.Close()
		v := mustPath(f, "/refs/heads/main//v")

		Convey("reads follow the ref to wherever it points now", func() {
			body, err := f.ReadString(v)
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "one")

			repo.SetRef("refs/heads/main", two)
			body, err = f.ReadString(v)
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "two")
			So(drain(events), ShouldContainSubstring, "ref refs/heads/main moved")
		})
		Convey("a ref that disappears is not found, and may come back", func() {
			So(repo.Storer.RemoveReference("refs/heads/main"), ShouldBeNil)
			_, err := f.ReadString(v)
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)

			repo.SetRef("refs/heads/main", two)
			body, err := f.ReadString(v)
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "two")
		})
		Convey("commit roots resolve once and stay", func() {
			commit, err := f.Commit(mustPath(f, "/"+one.String()+"//"))
			So(err, ShouldBeNil)
			So(commit.ID, ShouldEqual, one)

			absent := mustPath(f, "/3333333333333333333333333333333333333333//")
			_, err = f.Commit(absent)
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
			So(drain(events), ShouldContainSubstring, "does not resolve")
			_, err = f.Commit(absent)
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
		})
		Convey("relative paths use the default root", func() {
			body, err := f.ReadString(mustPath(f, "v"))
			So(err, ShouldBeNil)
			So(body, ShouldEqual, "one")
			So(f.DefaultRoot().String(), ShouldEqual, "/refs/heads/main//")
			So(f.EmptyPath().Shape(), ShouldEqual, fs.ShapeEmpty)
		})
		Convey("paths from elsewhere are refused", func() {
			other, err := fs.NewRegistry().OpenMemory("elsewhere", repo.Storer, fs.Options{})
			So(err, ShouldBeNil)
			defer other.Close()
			_, err = f.ReadBytes(mustPath(other, "/refs/heads/main//v"))
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrUsage)
		})
	})
}

func drain(events chan gitfs.Event) string {
	var msgs []string
	for {
		select {
		case evt := <-events:
			if evt.Log != nil {
				msgs = append(msgs, evt.Log.Msg)
			}
		default:
			return strings.Join(msgs, "\n")
		}
	}
}

func TestFilesystemClose(t *testing.T) {
	Convey("Given an open filesystem with a stream", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		events := make(chan gitfs.Event, 100)
		reg := fs.NewRegistry()
		f, err := reg.OpenMemory("closing", fx.Repo.Storer, fs.Options{Monitor: gitfs.Monitor{Chan: events}})
		So(err, ShouldBeNil)
		stream, err := f.NewDirectoryStream(mustPath(f, "/refs/heads/main//"), nil)
		So(err, ShouldBeNil)

		So(f.Close(), ShouldBeNil)

		Convey("everything after fails as closed", func() {
			So(f.IsOpen(), ShouldBeFalse)
			_, err := f.ReadBytes(mustPath(f, "readme"))
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrClosed)
			_, err = f.ListRoots()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrClosed)
			_, err = f.Refs()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrClosed)
			_, err = f.History()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrClosed)
			_, err = f.NewDirectoryStream(mustPath(f, ""), nil)
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrClosed)
		})
		Convey("its streams were closed too", func() {
			_, err := stream.Iterator()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrClosed)
		})
		Convey("closing again does nothing", func() {
			So(f.Close(), ShouldBeNil)
		})
		Convey("it left the registry", func() {
			_, err := reg.Get("mem:closing")
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
			So(drain(events), ShouldContainSubstring, "filesystem closed")
		})
	})
	Convey("Release failures are aggregated", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		f, err := fs.NewRegistry().OpenStore("mem:failing", failingClose{store.New(fx.Repo.Storer)}, fs.Options{})
		So(err, ShouldBeNil)
		err = f.Close()
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrIO)
		So(err.(errcat.Error).Details()["store"], ShouldContainSubstring, "disk on fire")
		So(f.Close(), ShouldBeNil)
	})
}

type failingClose struct {
	*store.GitStore
}

func (failingClose) Close() error {
	return errcat.Errorf(gitfs.ErrIO, "disk on fire")
}

func TestBlobCache(t *testing.T) {
	Convey("Content is read from the store once per commit and path", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		counter := &countingStore{GitStore: store.New(fx.Repo.Storer)}
		f, err := fs.NewRegistry().OpenStore("mem:counting", counter, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()

		for i := 0; i < 3; i++ {
			_, err := f.ReadBytes(mustPath(f, "/refs/heads/main//readme"))
			So(err, ShouldBeNil)
		}
		So(counter.blobReads, ShouldEqual, 1)

		Convey("callers can't scribble on the cache", func() {
			body, _ := f.ReadBytes(mustPath(f, "/refs/heads/main//readme"))
			body[0] = 'J'
			again, _ := f.ReadString(mustPath(f, "/refs/heads/main//readme"))
			So(again, ShouldEqual, "hello, world\n")
		})
	})
}

type countingStore struct {
	*store.GitStore
	blobReads int
}

func (s *countingStore) ReadBlob(id plumbing.Hash) ([]byte, error) {
	s.blobReads++
	return s.GitStore.ReadBlob(id)
}

func TestHistoryAndDates(t *testing.T) {
	Convey("Given a repository with equal-timestamp branches", t, func() {
		repo := testutil.NewMemoryRepo()
		base := repo.Commit(repo.Tree(), testutil.Hours(0))
		left := repo.CommitSpec(testutil.CommitSpec{Parents: []plumbing.Hash{base}, Message: "left\n", CommitterTime: testutil.Hours(1), AuthorTime: testutil.Hours(5)})
		right := repo.CommitSpec(testutil.CommitSpec{Parents: []plumbing.Hash{base}, Message: "right\n", CommitterTime: testutil.Hours(1), AuthorTime: testutil.Hours(-5)})
		repo.SetRef("refs/heads/main", left)
		repo.SetRef("refs/heads/other", right)

		Convey("roots are listed oldest first", func() {
			f, err := fs.NewRegistry().OpenMemory("roots", repo.Storer, fs.Options{})
			So(err, ShouldBeNil)
			defer f.Close()
			roots, err := f.ListRoots()
			So(err, ShouldBeNil)
			So(roots, ShouldHaveLength, 3)
			So(roots[0].Root().ID(), ShouldEqual, base)
			tied := []string{left.String(), right.String()}
			if tied[0] > tied[1] {
				tied[0], tied[1] = tied[1], tied[0]
			}
			So(roots[1].Root().ID().String(), ShouldEqual, tied[0])
			So(roots[2].Root().ID().String(), ShouldEqual, tied[1])

			h1, err := f.History()
			So(err, ShouldBeNil)
			h2, _ := f.History()
			So(h1, ShouldEqual, h2)
		})
		Convey("the author date can be primary instead", func() {
			f, err := fs.NewRegistry().OpenMemory("roots", repo.Storer, fs.Options{DateSource: history.AuthorDate})
			So(err, ShouldBeNil)
			defer f.Close()
			roots, err := f.ListRoots()
			So(err, ShouldBeNil)
			So(roots[0].Root().ID(), ShouldEqual, right)
			So(roots[2].Root().ID(), ShouldEqual, left)
		})
		Convey("observed dates reconcile against the graph", func() {
			f, err := fs.NewRegistry().OpenMemory("roots", repo.Storer, fs.Options{})
			So(err, ShouldBeNil)
			defer f.Close()
			rec, err := f.ReconcileDates(map[plumbing.Hash]time.Time{
				base: testutil.Hours(3),
				left: testutil.Hours(2),
			})
			So(err, ShouldBeNil)
			So(rec.Dates[left], ShouldEqual, testutil.Hours(3))
			So(rec.Patched[left], ShouldEqual, testutil.Hours(2))
			So(rec.Dates[right], ShouldEqual, testutil.Hours(3))
		})
	})
}

func TestSubmodules(t *testing.T) {
	Convey("Given roots with and without submodules", t, func() {
		repo := testutil.NewMemoryRepo()
		pinned := plumbing.NewHash("4444444444444444444444444444444444444444")
		plain := repo.Commit(repo.Files(map[string]testutil.File{"a": {Content: "a"}}), testutil.Hours(0))
		with := repo.Commit(repo.Files(map[string]testutil.File{
			".gitmodules": {Content: "[submodule \"lib\"]\n\tpath = vendor/lib\n\turl = https://example.org/lib.git\n\tbranch = stable\n"},
			"vendor/lib":  {Mode: filemode.Submodule, Hash: pinned},
		}), testutil.Hours(1), plain)
		broken := repo.Commit(repo.Files(map[string]testutil.File{
			".gitmodules": {Content: "[submodule \"lib\"]\n\tpath = vendor/lib\n\turl = https://example.org/lib.git\n"},
			"vendor/lib":  {Content: "not a gitlink"},
		}), testutil.Hours(2), with)
		f, err := fs.NewRegistry().OpenMemory("submodules", repo.Storer, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()

		subs, err := f.Submodules(mustPath(f, "/"+plain.String()+"//"))
		So(err, ShouldBeNil)
		So(subs, ShouldBeEmpty)

		subs, err = f.Submodules(mustPath(f, "/"+with.String()+"//"))
		So(err, ShouldBeNil)
		So(subs, ShouldResemble, []fs.Submodule{{
			Name:   "lib",
			Path:   "vendor/lib",
			URL:    "https://example.org/lib.git",
			Branch: "stable",
			Commit: pinned,
		}})

		_, err = f.Submodules(mustPath(f, "/"+broken.String()+"//"))
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrCorrupt)

		Convey("gitlinks can't be descended into", func() {
			_, err := f.Stat(mustPath(f, "/"+with.String()+"//vendor/lib/x"), true)
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotADirectory)
			meta, err := f.Stat(mustPath(f, "/"+with.String()+"//vendor/lib"), true)
			So(err, ShouldBeNil)
			So(meta.Mode, ShouldEqual, store.ModeSubmodule)
			So(meta.ID, ShouldEqual, pinned)
		})
	})
}

func TestTextDiff(t *testing.T) {
	Convey("Text diffs show changed lines", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		f, err := fs.NewRegistry().OpenMemory("diff", fx.Repo.Storer, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()

		out, err := fs.TextDiff(f, mustPath(f, "/refs/heads/old//readme"), mustPath(f, "/refs/heads/main//readme"))
		So(err, ShouldBeNil)
		So(out, ShouldEqual, "-hello\n+hello, world\n")

		out, err = fs.TextDiff(f, mustPath(f, "/refs/heads/main//readme"), mustPath(f, "/refs/heads/main//readme"))
		So(err, ShouldBeNil)
		So(out, ShouldEqual, " hello, world\n")

		_, err = fs.TextDiff(f, mustPath(f, "/refs/heads/main//bin"), mustPath(f, "/refs/heads/main//readme"))
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotAFile)
	})
}

func TestWalk(t *testing.T) {
	Convey("Walking visits every node, pre and post order", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		f, err := fs.NewRegistry().OpenMemory("walk", fx.Repo.Storer, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()

		var pre, post []string
		err = fs.Walk(f, mustPath(f, "/refs/heads/old//"),
			func(node *fs.WalkNode) error {
				So(node.Err, ShouldBeNil)
				pre = append(pre, node.Path.String())
				return nil
			},
			func(node *fs.WalkNode) error {
				post = append(post, node.Path.String())
				return nil
			},
		)
		So(err, ShouldBeNil)
		So(pre, ShouldResemble, []string{
			"/refs/heads/old//",
			"/refs/heads/old//absolute",
			"/refs/heads/old//bin",
			"/refs/heads/old//bin/run",
			"/refs/heads/old//dirlink",
			"/refs/heads/old//docs",
			"/refs/heads/old//docs/guide",
			"/refs/heads/old//docs/up",
			"/refs/heads/old//escape",
			"/refs/heads/old//link-readme",
			"/refs/heads/old//loop-a",
			"/refs/heads/old//loop-b",
			"/refs/heads/old//readme",
		})
		So(post[len(post)-1], ShouldEqual, "/refs/heads/old//")
		So(post[0], ShouldEqual, "/refs/heads/old//absolute")
		So(post, ShouldHaveLength, len(pre))
	})
}
