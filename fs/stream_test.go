package fs_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/fs/tests"
	"go.polydawn.net/gitfs/store"
	"go.polydawn.net/gitfs/testutil"
)

type listCountingStore struct {
	*store.GitStore
	lists int
}

func (s *listCountingStore) ListTree(tree plumbing.Hash) ([]store.TreeEntry, error) {
	s.lists++
	return s.GitStore.ListTree(tree)
}

func TestDirectoryStream(t *testing.T) {
	Convey("Given a directory stream", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		counter := &listCountingStore{GitStore: store.New(fx.Repo.Storer)}
		f, err := fs.NewRegistry().OpenStore("mem:streams", counter, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()
		stream, err := f.NewDirectoryStream(mustPath(f, "/refs/heads/old//docs"), nil)
		So(err, ShouldBeNil)

		Convey("nothing is read until asked", func() {
			So(counter.lists, ShouldEqual, 0)
			it, err := stream.Iterator()
			So(err, ShouldBeNil)
			So(counter.lists, ShouldEqual, 0)
			ok, err := it.HasNext()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(counter.lists, ShouldEqual, 1)
		})
		Convey("asking twice doesn't skip anything", func() {
			it, _ := stream.Iterator()
			for i := 0; i < 3; i++ {
				ok, err := it.HasNext()
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			}
			p, err := it.Next()
			So(err, ShouldBeNil)
			So(p.String(), ShouldEqual, "/refs/heads/old//docs/guide")
			p, err = it.Next()
			So(err, ShouldBeNil)
			So(p.String(), ShouldEqual, "/refs/heads/old//docs/up")
			ok, err := it.HasNext()
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			_, err = it.Next()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrUsage)
			So(counter.lists, ShouldEqual, 1)
		})
		Convey("only one iterator may be taken", func() {
			_, err := stream.Iterator()
			So(err, ShouldBeNil)
			_, err = stream.Iterator()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrUsage)
		})
		Convey("closing keeps an entry already read ahead", func() {
			it, _ := stream.Iterator()
			ok, _ := it.HasNext()
			So(ok, ShouldBeTrue)
			So(stream.Close(), ShouldBeNil)

			ok, err := it.HasNext()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			p, err := it.Next()
			So(err, ShouldBeNil)
			So(p.String(), ShouldEqual, "/refs/heads/old//docs/guide")
			ok, err = it.HasNext()
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
		Convey("closing before reading yields nothing", func() {
			it, _ := stream.Iterator()
			So(stream.Close(), ShouldBeNil)
			So(stream.Close(), ShouldBeNil)
			ok, err := it.HasNext()
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			So(counter.lists, ShouldEqual, 0)
		})
	})
	Convey("Errors stick to a stream", t, func() {
		fx := tests.BuildFixture(testutil.NewMemoryRepo())
		f, err := fs.NewRegistry().OpenMemory("sticky", fx.Repo.Storer, fs.Options{})
		So(err, ShouldBeNil)
		defer f.Close()

		Convey("a missing directory is reported on first use, and every use after", func() {
			stream, err := f.NewDirectoryStream(mustPath(f, "/refs/heads/main//nope"), nil)
			So(err, ShouldBeNil)
			it, _ := stream.Iterator()
			_, err = it.HasNext()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
			_, err = it.HasNext()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
			_, err = it.Next()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
		})
		Convey("filter errors stick too", func() {
			stream, err := f.NewDirectoryStream(mustPath(f, "/refs/heads/main//"), func(fs.Path) (bool, error) {
				return false, errcat.Errorf(gitfs.ErrIO, "filter broke")
			})
			So(err, ShouldBeNil)
			it, _ := stream.Iterator()
			_, err = it.HasNext()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrIO)
			_, err = it.HasNext()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrIO)
		})
		Convey("relative directories list relative entries", func() {
			entries, err := fs.ReadDir(f, mustPath(f, "bin"), nil)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].String(), ShouldEqual, "bin/run")
		})
	})
}
