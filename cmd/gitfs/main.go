package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/alecthomas/kingpin.v2"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/config"
	"go.polydawn.net/gitfs/filter"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/history"
)

type baseCLI struct {
	Repo       string // Repository name or directory
	Format     string // Output api format, eg. json
	DateSource string // Primary timestamp: committer or author
	Author     string // Show only commits by this author
	Verbose    bool   // Log filesystem events to stderr

	Path     string   // Path spec for ls, cat, stat, submodules
	Paths    []string // Path specs for diff
	NoFollow bool     // stat: don't follow a final symlink
	Text     bool     // diff: line diff of two files
	Observed string   // dates: json file of observed dates; empty or "-" for stdin
	Mount    string   // mount: mountpoint
}

/*
	Blocks until a sigint is received, then calls cancel.
*/
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	signal.Stop(signalChan)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	go CancelOnInterrupt(cancel)
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) gitfs.ExitCode {
	cli := baseCLI{}

	app := kingpin.New("gitfs", "Browse a git repository as a read-only filesystem")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("repo", "Repository directory, or a name under $GITFS_REPOS").
		Short('C').
		Default(".").
		StringVar(&cli.Repo)
	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)
	app.Flag("date-source", "Primary commit timestamp [committer, author] (default $GITFS_DATE_SOURCE, else committer)").
		EnumVar(&cli.DateSource, "committer", "author")
	app.Flag("author", "Show only commits by this author (name or email)").
		StringVar(&cli.Author)
	app.Flag("verbose", "Log filesystem events to stderr").
		Short('v').
		BoolVar(&cli.Verbose)

	appRoots := app.Command("roots", "list every commit, oldest first")
	appRefs := app.Command("refs", "list refs and the commits they point at")
	appLs := app.Command("ls", "list a directory")
	appLs.Arg("path", "Path spec, eg. /refs/heads/main//src").
		Default("").
		StringVar(&cli.Path)
	appCat := app.Command("cat", "print a file")
	appCat.Arg("path", "Path spec").
		Required().
		StringVar(&cli.Path)
	appStat := app.Command("stat", "describe a path")
	appStat.Arg("path", "Path spec").
		Required().
		StringVar(&cli.Path)
	appStat.Flag("no-follow", "Describe a final symlink rather than its target").
		BoolVar(&cli.NoFollow)
	appDiff := app.Command("diff", "list changes between two trees, or diff two files")
	appDiff.Arg("paths", "Two path specs").
		Required().
		StringsVar(&cli.Paths)
	appDiff.Flag("text", "Line diff of two files").
		BoolVar(&cli.Text)
	appSubmodules := app.Command("submodules", "list the submodules of a root")
	appSubmodules.Arg("root", "Root path spec").
		Default("").
		StringVar(&cli.Path)
	appGraph := app.Command("graph", "list ancestry edges, parent then child")
	appDates := app.Command("dates", "reconcile observed commit dates against the graph")
	appDates.Arg("observed", "file holding a JSON object of commit id to RFC3339 date; stdin if omitted").
		StringVar(&cli.Observed)
	appMount := app.Command("mount", "mount read-only with FUSE, until interrupted")
	appMount.Arg("mountpoint", "Where to mount (default $GITFS_MOUNT/<repo>)").
		StringVar(&cli.Mount)

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return gitfs.ExitUsage
	}
	if termErr != nil {
		return gitfs.ExitUsage
	}

	mon, stopLogging := startLogging(cli.Verbose, stderr)
	defer stopLogging()

	v, err := openView(cli, mon)
	if err != nil {
		SerializeResult(cli.Format, nil, err, stdout, stderr)
		return gitfs.ExitCodeForCategory(Category(err))
	}
	defer v.Filesystem().Close()

	var out output
	switch cmd {
	case appRoots.FullCommand():
		out, err = executeRoots(v)
	case appRefs.FullCommand():
		out, err = executeRefs(v)
	case appLs.FullCommand():
		out, err = executeLs(v, cli.Path)
	case appCat.FullCommand():
		// Raw bytes regardless of format.
		err = executeCat(v, cli.Path, stdout)
		if err != nil {
			SerializeResult(cli.Format, nil, err, stdout, stderr)
		}
		return gitfs.ExitCodeForCategory(Category(err))
	case appStat.FullCommand():
		out, err = executeStat(v, cli.Path, !cli.NoFollow)
	case appDiff.FullCommand():
		out, err = executeDiff(v, cli.Paths, cli.Text)
	case appSubmodules.FullCommand():
		out, err = executeSubmodules(v, cli.Path)
	case appGraph.FullCommand():
		out, err = executeGraph(v)
	case appDates.FullCommand():
		out, err = executeDates(v, cli.Observed, stdin)
	case appMount.FullCommand():
		out, err = executeMount(ctx, v, cli, mon)
	}
	SerializeResult(cli.Format, out, err, stdout, stderr)
	return gitfs.ExitCodeForCategory(Category(err))
}

/*
	Open the repository named on the command line, and wrap it in an
	author filter if one was asked for.
*/
func openView(cli baseCLI, mon gitfs.Monitor) (fs.View, error) {
	dir, err := config.ResolveRepo(cli.Repo)
	if err != nil {
		return nil, err
	}
	source, err := config.GetDateSource()
	if err != nil {
		return nil, err
	}
	if cli.DateSource != "" {
		if source, err = history.ParseDateSource(cli.DateSource); err != nil {
			return nil, err
		}
	}
	f, err := fs.DefaultRegistry().OpenDir(dir, fs.Options{Monitor: mon, DateSource: source})
	if err != nil {
		return nil, err
	}
	if cli.Author != "" {
		return filter.New(f, filter.AuthoredBy(cli.Author)), nil
	}
	return f, nil
}

/*
	When verbose, returns a Monitor whose events are printed to stderr
	until stop is called; otherwise a silent Monitor.
*/
func startLogging(verbose bool, stderr io.Writer) (mon gitfs.Monitor, stop func()) {
	if !verbose {
		return gitfs.Monitor{}, func() {}
	}
	ch := make(chan gitfs.Event, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ch {
			if ev.Log == nil {
				continue
			}
			fmt.Fprintf(stderr, "%s %-5s %s%s\n",
				ev.Log.Time.Format(time.RFC3339),
				ev.Log.Level,
				ev.Log.Msg,
				formatDetail(ev.Log.Detail),
			)
		}
	}()
	return gitfs.Monitor{Chan: ch}, func() {
		close(ch)
		wg.Wait()
	}
}

func formatDetail(detail [][2]string) string {
	if len(detail) == 0 {
		return ""
	}
	parts := make([]string, len(detail))
	for i, kv := range detail {
		parts[i] = kv[0] + "=" + kv[1]
	}
	return " [" + strings.Join(parts, " ") + "]"
}

func defaultMountpoint(v fs.View, repo string) (string, error) {
	base, err := config.GetMountPath()
	if err != nil {
		return "", err
	}
	name := filepath.Base(strings.TrimPrefix(v.Filesystem().Identity(), "file:"))
	if name == "." || name == string(filepath.Separator) {
		name = repo
	}
	return filepath.Join(base, name), nil
}
