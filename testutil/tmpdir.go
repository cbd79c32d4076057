package testutil

import (
	"io/ioutil"
	"os"
)

/*
	Run fn with a fresh temporary directory, removing it afterward.
	Panics if the directory cannot be made; this is for tests only.
*/
func WithTmpdir(fn func(tmpDir string)) {
	tmpBase := os.Getenv("GITFS_TEST_TMPDIR")
	dir, err := ioutil.TempDir(tmpBase, "gitfs-test-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)
	fn(dir)
}
