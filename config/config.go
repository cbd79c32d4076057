/*
	Helpers for loading contextual config.

	Config for gitfs means "things that are the host machine operator's concerns".
	So, things like where repositories live and where to mount them are considered "config",
	as opposed to parameters for function calls.
	Everything here comes from the environment; a leading `~` is expanded
	to the user's home directory.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/history"
)

/*
	Return the home-base path prefix that is the default root for all other gitfs paths.

	The default value is `"~/.gitfs"`;
	this can be overriden by the `GITFS_BASE` environment variable.
*/
func GetBasePath() (string, error) {
	return envPath("GITFS_BASE", func() (string, error) {
		return "~/.gitfs", nil
	})
}

/*
	Return the path where repositories named without a directory are looked up.

	The default value is `"$GITFS_BASE/repos"`;
	this can be overriden by the `GITFS_REPOS` environment variable.
*/
func GetReposPath() (string, error) {
	return envPath("GITFS_REPOS", func() (string, error) {
		base, err := GetBasePath()
		return filepath.Join(base, "repos"), err
	})
}

/*
	Return the path under which mounts are made when no mountpoint is given.

	The default value is `"$GITFS_BASE/mnt"`;
	this can be overriden by the `GITFS_MOUNT` environment variable.
*/
func GetMountPath() (string, error) {
	return envPath("GITFS_MOUNT", func() (string, error) {
		base, err := GetBasePath()
		return filepath.Join(base, "mnt"), err
	})
}

/*
	Return which commit timestamp is primary.

	The default is the committer date;
	this can be overriden by the `GITFS_DATE_SOURCE` environment variable
	("committer" or "author").
*/
func GetDateSource() (history.DateSource, error) {
	return history.ParseDateSource(os.Getenv("GITFS_DATE_SOURCE"))
}

/*
	Find a repository by name: anything that looks like a path (absolute,
	or starting with "." or "~") is used as one; a bare name is looked up
	in the repos path.
*/
func ResolveRepo(name string) (string, error) {
	switch {
	case name == "":
		return "", Errorf(gitfs.ErrUsage, "repository name must not be empty")
	case filepath.IsAbs(name), name[0] == '.', name[0] == '~':
		return absolute(name)
	default:
		repos, err := GetReposPath()
		if err != nil {
			return "", err
		}
		return filepath.Join(repos, name), nil
	}
}

func envPath(key string, fallback func() (string, error)) (string, error) {
	pth := os.Getenv(key)
	if pth == "" {
		var err error
		if pth, err = fallback(); err != nil {
			return "", err
		}
	}
	return absolute(pth)
}

func absolute(pth string) (string, error) {
	pth, err := homedir.Expand(pth)
	if err != nil {
		return "", Errorf(gitfs.ErrUsage, "cannot expand %q: %s", pth, err)
	}
	pth, err = filepath.Abs(pth)
	if err != nil {
		return "", Errorf(gitfs.ErrIO, "cannot make %q absolute: %s", pth, err)
	}
	return pth, nil
}
