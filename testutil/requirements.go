package testutil

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/smartystreets/goconvey/convey"
)

type ConveyRequirement struct {
	Name      string
	Predicate func() bool
}

/*
	Require that the host can make FUSE mounts: the device node exists
	and the setuid helper is on the path.
*/
var RequiresFuse = ConveyRequirement{"have fuse device and fusermount", func() bool {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		return false
	}
	for _, helper := range []string{"fusermount3", "fusermount"} {
		if _, err := exec.LookPath(helper); err == nil {
			return true
		}
	}
	return false
}}

/*
	Require than an env var *not* be set.

	We use this for things like `RequiresEnvBlank("GITFS_TEST_SKIP_FUSE")`.
*/
func RequiresEnvBlank(key string) ConveyRequirement {
	return ConveyRequirement{
		fmt.Sprintf("env %q must not be set", key),
		func() bool { return os.Getenv(key) == "" },
	}
}

/*
	Wrap a Convey body so it only runs when every requirement holds.

	Arguments are any number of `ConveyRequirement`s followed by the body,
	a `func()` or `func(convey.C)`, in the same order `Convey` takes them.
	When something is unmet, the returned func reports which requirement
	failed and skips instead.
*/
func Requires(items ...interface{}) func(c convey.C) {
	var unmet []string
	var reqs []string
	for _, it := range items[:len(items)-1] {
		req := it.(ConveyRequirement)
		reqs = append(reqs, req.Name)
		if !req.Predicate() {
			unmet = append(unmet, req.Name)
		}
	}
	body := items[len(items)-1]
	if len(unmet) > 0 {
		return func(c convey.C) {
			convey.Convey("Prereqs: "+strings.Join(reqs, ", "), nil)
			c.Println()
			c.Printf("unmet: %s\n", strings.Join(unmet, "; "))
		}
	}
	return func(c convey.C) {
		switch body := body.(type) {
		case func():
			body()
		case func(c convey.C):
			body(c)
		default:
			panic(fmt.Errorf("testutil.Requires: last argument must be a test func, not %T", body))
		}
	}
}
