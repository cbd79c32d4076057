package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/history"
)

func withEnv(env map[string]string, fn func()) {
	saved := map[string]*string{}
	for k, v := range env {
		if old, ok := os.LookupEnv(k); ok {
			saved[k] = &old
		} else {
			saved[k] = nil
		}
		os.Setenv(k, v)
	}
	defer func() {
		for k, old := range saved {
			if old == nil {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, *old)
			}
		}
	}()
	fn()
}

func TestConfig(t *testing.T) {
	homedir.DisableCache = true
	defer func() { homedir.DisableCache = false }()

	Convey("With nothing configured", t, func() {
		withEnv(map[string]string{
			"HOME":              "/home/someone",
			"GITFS_BASE":        "",
			"GITFS_REPOS":       "",
			"GITFS_MOUNT":       "",
			"GITFS_DATE_SOURCE": "",
		}, func() {
			base, err := GetBasePath()
			So(err, ShouldBeNil)
			So(base, ShouldEqual, "/home/someone/.gitfs")
			repos, err := GetReposPath()
			So(err, ShouldBeNil)
			So(repos, ShouldEqual, "/home/someone/.gitfs/repos")
			mnt, err := GetMountPath()
			So(err, ShouldBeNil)
			So(mnt, ShouldEqual, "/home/someone/.gitfs/mnt")
			src, err := GetDateSource()
			So(err, ShouldBeNil)
			So(src, ShouldEqual, history.CommitterDate)
		})
	})
	Convey("With a base configured", t, func() {
		withEnv(map[string]string{
			"HOME":        "/home/someone",
			"GITFS_BASE":  "~/elsewhere",
			"GITFS_REPOS": "",
			"GITFS_MOUNT": "/mnt/gitfs",
		}, func() {
			repos, err := GetReposPath()
			So(err, ShouldBeNil)
			So(repos, ShouldEqual, "/home/someone/elsewhere/repos")
			mnt, err := GetMountPath()
			So(err, ShouldBeNil)
			So(mnt, ShouldEqual, "/mnt/gitfs")
		})
	})
	Convey("Relative settings are made absolute", t, func() {
		withEnv(map[string]string{"GITFS_REPOS": "some/where"}, func() {
			wd, err := os.Getwd()
			So(err, ShouldBeNil)
			repos, err := GetReposPath()
			So(err, ShouldBeNil)
			So(repos, ShouldEqual, filepath.Join(wd, "some/where"))
		})
	})
	Convey("Date sources parse", t, func() {
		withEnv(map[string]string{"GITFS_DATE_SOURCE": "author"}, func() {
			src, err := GetDateSource()
			So(err, ShouldBeNil)
			So(src, ShouldEqual, history.AuthorDate)
		})
		withEnv(map[string]string{"GITFS_DATE_SOURCE": "tuesday"}, func() {
			_, err := GetDateSource()
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrParse)
		})
	})
	Convey("Repositories resolve by name or by path", t, func() {
		withEnv(map[string]string{"HOME": "/home/someone", "GITFS_REPOS": "/srv/repos"}, func() {
			for _, tr := range []struct {
				name   string
				expect string
			}{
				{"project", "/srv/repos/project"},
				{"/abs/project", "/abs/project"},
				{"~/project", "/home/someone/project"},
			} {
				got, err := ResolveRepo(tr.name)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, tr.expect)
			}
			_, err := ResolveRepo("")
			So(err, errcat.ErrorShouldHaveCategory, gitfs.ErrUsage)
		})
	})
}
