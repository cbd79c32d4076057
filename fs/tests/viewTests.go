/*
	Checks that any fs.View must pass, over a standard fixture repository.

	The filesystem facade runs these directly; wrappers (like the filter
	overlay with a predicate that accepts everything) run them too, to
	show they change nothing they shouldn't.
*/
package tests

import (
	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/rev"
	"go.polydawn.net/gitfs/store"
	"go.polydawn.net/gitfs/testutil"
)

/*
	Two commits on refs/heads/main (First, then Second); refs/heads/old
	stays at First.

	First's tree:

	  readme          "hello\n"
	  bin/run         executable
	  docs/guide      "guide v1\n"
	  docs/up         -> ../readme
	  link-readme     -> readme
	  dirlink         -> docs
	  loop-a, loop-b  -> each other
	  escape          -> ../../outside
	  absolute        -> /etc/passwd

	Second changes readme to "hello, world\n", drops docs/guide, and adds "new".
*/
type Fixture struct {
	Repo   *testutil.RepoBuilder
	First  plumbing.Hash
	Second plumbing.Hash
}

func BuildFixture(repo *testutil.RepoBuilder) Fixture {
	links := map[string]testutil.File{
		"docs/up":     {Content: "../readme", Mode: filemode.Symlink},
		"link-readme": {Content: "readme", Mode: filemode.Symlink},
		"dirlink":     {Content: "docs", Mode: filemode.Symlink},
		"loop-a":      {Content: "loop-b", Mode: filemode.Symlink},
		"loop-b":      {Content: "loop-a", Mode: filemode.Symlink},
		"escape":      {Content: "../../outside", Mode: filemode.Symlink},
		"absolute":    {Content: "/etc/passwd", Mode: filemode.Symlink},
	}
	first := map[string]testutil.File{
		"readme":     {Content: "hello\n"},
		"bin/run":    {Content: "#!/bin/sh\n", Mode: filemode.Executable},
		"docs/guide": {Content: "guide v1\n"},
	}
	second := map[string]testutil.File{
		"readme":  {Content: "hello, world\n"},
		"bin/run": {Content: "#!/bin/sh\n", Mode: filemode.Executable},
		"new":     {Content: "fresh\n"},
	}
	for k, v := range links {
		first[k] = v
		second[k] = v
	}
	var fx Fixture
	fx.Repo = repo
	fx.First = repo.Commit(repo.Files(first), testutil.Hours(0))
	fx.Second = repo.Commit(repo.Files(second), testutil.Hours(1), fx.First)
	repo.SetRef("refs/heads/main", fx.Second)
	repo.SetRef("refs/heads/old", fx.First)
	return fx
}

func mustPath(v fs.View, first string, more ...string) fs.Path {
	p, err := v.Filesystem().GetPath(first, more...)
	if err != nil {
		panic(err)
	}
	return p
}

func CheckAll(v fs.View, fx Fixture) {
	CheckReadContent(v, fx)
	CheckLookupErrors(v, fx)
	CheckSymlinks(v, fx)
	CheckDirectoryListing(v, fx)
	CheckRoots(v, fx)
}

func CheckReadContent(v fs.View, fx Fixture) {
	Convey("Reading files under ref and commit roots", func() {
		body, err := v.ReadBytes(mustPath(v, "/refs/heads/main//readme"))
		So(err, ShouldBeNil)
		So(string(body), ShouldEqual, "hello, world\n")

		body, err = v.ReadBytes(mustPath(v, "/"+fx.First.String()+"//readme"))
		So(err, ShouldBeNil)
		So(string(body), ShouldEqual, "hello\n")

		body, err = v.ReadBytes(mustPath(v, "/refs/heads/old//docs/guide"))
		So(err, ShouldBeNil)
		So(string(body), ShouldEqual, "guide v1\n")

		Convey("relative paths read from the default root", func() {
			body, err := v.ReadBytes(mustPath(v, "readme"))
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "hello, world\n")
		})
		Convey("stat reports modes and sizes", func() {
			meta, err := v.Stat(mustPath(v, "/refs/heads/main//bin/run"), false)
			So(err, ShouldBeNil)
			So(meta.Mode, ShouldEqual, store.ModeExecutable)
			So(meta.Name, ShouldEqual, "run")
			So(meta.Size, ShouldEqual, 10)
			So(meta.ModTime.Equal(testutil.Hours(1)), ShouldBeTrue)

			meta, err = v.Stat(mustPath(v, "/refs/heads/main//bin"), false)
			So(err, ShouldBeNil)
			So(meta.IsDir(), ShouldBeTrue)

			meta, err = v.Stat(mustPath(v, "/refs/heads/main//"), false)
			So(err, ShouldBeNil)
			So(meta.IsDir(), ShouldBeTrue)
			So(meta.Name, ShouldEqual, "")
		})
		Convey("trees are not files", func() {
			_, err := v.ReadBytes(mustPath(v, "/refs/heads/main//bin"))
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotAFile)
		})
	})
}

func CheckLookupErrors(v fs.View, fx Fixture) {
	Convey("Looking up things that aren't there", func() {
		_, err := v.ReadBytes(mustPath(v, "/refs/heads/main//docs/guide"))
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)

		_, err = v.Stat(mustPath(v, "/refs/heads/main//readme/inner"), false)
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotADirectory)

		_, err = v.Stat(mustPath(v, "/refs/heads/nope//readme"), false)
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)

		_, err = v.Stat(mustPath(v, "/2222222222222222222222222222222222222222//"), false)
		So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)

		ok, err := v.Exists(mustPath(v, "/refs/heads/main//readme/inner"), true)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
		ok, err = v.Exists(mustPath(v, "/refs/heads/old//docs/guide"), true)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
	})
}

func CheckSymlinks(v fs.View, fx Fixture) {
	Convey("Symlinks", func() {
		Convey("are followed within the root when reading", func() {
			body, err := v.ReadBytes(mustPath(v, "/refs/heads/main//link-readme"))
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "hello, world\n")
			body, err = v.ReadBytes(mustPath(v, "/refs/heads/main//docs/up"))
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "hello, world\n")
			body, err = v.ReadBytes(mustPath(v, "/refs/heads/old//dirlink/guide"))
			So(err, ShouldBeNil)
			So(string(body), ShouldEqual, "guide v1\n")
		})
		Convey("report themselves when not followed", func() {
			meta, err := v.Stat(mustPath(v, "/refs/heads/main//link-readme"), false)
			So(err, ShouldBeNil)
			So(meta.Mode, ShouldEqual, store.ModeSymlink)
			So(meta.Linkname, ShouldEqual, "readme")
			target, err := v.ReadLink(mustPath(v, "/refs/heads/main//dirlink"))
			So(err, ShouldBeNil)
			So(target, ShouldEqual, "docs")
			_, err = v.ReadLink(mustPath(v, "/refs/heads/main//readme"))
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrUsage)
		})
		Convey("never leak existence through an unfollowed link", func() {
			ok, err := v.Exists(mustPath(v, "/refs/heads/old//dirlink/guide"), false)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
			ok, err = v.Exists(mustPath(v, "/refs/heads/old//dirlink/guide"), true)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
		})
		Convey("that loop or escape are not found", func() {
			for _, name := range []string{"loop-a", "escape", "absolute"} {
				_, err := v.ReadBytes(mustPath(v, "/refs/heads/main//"+name))
				So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotFound)
				ok, err := v.Exists(mustPath(v, "/refs/heads/main//"+name), false)
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
			}
		})
	})
}

func CheckDirectoryListing(v fs.View, fx Fixture) {
	Convey("Listing directories", func() {
		entries, err := fs.ReadDir(v, mustPath(v, "/refs/heads/main//"), nil)
		So(err, ShouldBeNil)
		var names []string
		for _, e := range entries {
			name, _ := e.FileName()
			names = append(names, name)
			So(e.IsAbsolute(), ShouldBeTrue)
		}
		So(names, ShouldResemble, []string{"absolute", "bin", "dirlink", "docs", "escape", "link-readme", "loop-a", "loop-b", "new", "readme"})

		Convey("through a filter", func() {
			entries, err := fs.ReadDir(v, mustPath(v, "/refs/heads/old//docs"), func(p fs.Path) (bool, error) {
				name, _ := p.FileName()
				return name != "up", nil
			})
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)
			So(entries[0].String(), ShouldEqual, "/refs/heads/old//docs/guide")
		})
		Convey("of a file fails", func() {
			_, err := fs.ReadDir(v, mustPath(v, "/refs/heads/main//readme"), nil)
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrNotADirectory)
		})
	})
}

func CheckRoots(v fs.View, fx Fixture) {
	Convey("Roots", func() {
		roots, err := v.ListRoots()
		So(err, ShouldBeNil)
		So(roots, ShouldHaveLength, 2)
		So(roots[0].Root(), ShouldResemble, rev.CommitID(fx.First))
		So(roots[1].Root(), ShouldResemble, rev.CommitID(fx.Second))

		refs, err := v.Refs()
		So(err, ShouldBeNil)
		So(refs, ShouldHaveLength, 2)
		So(refs[0].String(), ShouldEqual, "/refs/heads/main//")
		So(refs[1].String(), ShouldEqual, "/refs/heads/old//")

		commit, err := v.Commit(mustPath(v, "/refs/heads/main//readme"))
		So(err, ShouldBeNil)
		So(commit.ID, ShouldEqual, fx.Second)
		So(commit.Parents, ShouldResemble, []plumbing.Hash{fx.First})

		changes, err := v.Diff(mustPath(v, "/refs/heads/old//"), mustPath(v, "/refs/heads/main//"))
		So(err, ShouldBeNil)
		So(changes, ShouldResemble, []store.Change{
			{Action: store.Delete, From: "docs/guide"},
			{Action: store.Insert, To: "new"},
			{Action: store.Modify, From: "readme", To: "readme"},
		})
	})
}
