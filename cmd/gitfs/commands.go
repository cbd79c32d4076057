package main

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"sort"
	"time"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/mount"
	"go.polydawn.net/gitfs/store"
)

func getPath(v fs.View, spec string) (fs.Path, error) {
	return v.Filesystem().GetPath(spec)
}

func executeRoots(v fs.View) (output, error) {
	roots, err := v.ListRoots()
	if err != nil {
		return nil, err
	}
	list := make(rootList, len(roots))
	for i, root := range roots {
		meta, err := v.Stat(root, false)
		if err != nil {
			return nil, err
		}
		list[i] = rootRecord{Commit: root.Root().ID(), Date: meta.ModTime}
	}
	return list, nil
}

func executeRefs(v fs.View) (output, error) {
	refs, err := v.Refs()
	if err != nil {
		return nil, err
	}
	list := make(refList, 0, len(refs))
	for _, ref := range refs {
		c, err := v.Commit(ref)
		if err != nil {
			return nil, err
		}
		list = append(list, refRecord{Ref: string(ref.Root().RefName()), Commit: c.ID})
	}
	return list, nil
}

func entryOf(p fs.Path, meta fs.Metadata) entryRecord {
	return entryRecord{
		Path: p.String(),
		Mode: meta.Mode.String(),
		ID:   meta.ID,
		Size: meta.Size,
		Link: meta.Linkname,
	}
}

func executeLs(v fs.View, spec string) (output, error) {
	dir, err := getPath(v, spec)
	if err != nil {
		return nil, err
	}
	children, err := fs.ReadDir(v, dir, nil)
	if err != nil {
		return nil, err
	}
	list := make(entryList, len(children))
	for i, child := range children {
		meta, err := v.Stat(child, false)
		if err != nil {
			return nil, err
		}
		list[i] = entryOf(child, meta)
	}
	return list, nil
}

func executeCat(v fs.View, spec string, stdout io.Writer) error {
	p, err := getPath(v, spec)
	if err != nil {
		return err
	}
	body, err := v.ReadBytes(p)
	if err != nil {
		return err
	}
	if _, err := stdout.Write(body); err != nil {
		return Errorf(gitfs.ErrIO, "cannot write output: %s", err)
	}
	return nil
}

func executeStat(v fs.View, spec string, follow bool) (output, error) {
	p, err := getPath(v, spec)
	if err != nil {
		return nil, err
	}
	meta, err := v.Stat(p, follow)
	if err != nil {
		return nil, err
	}
	return entryList{entryOf(p, meta)}, nil
}

func executeDiff(v fs.View, specs []string, text bool) (output, error) {
	if len(specs) != 2 {
		return nil, Errorf(gitfs.ErrUsage, "diff takes exactly two paths, not %d", len(specs))
	}
	a, err := getPath(v, specs[0])
	if err != nil {
		return nil, err
	}
	b, err := getPath(v, specs[1])
	if err != nil {
		return nil, err
	}
	if text {
		diff, err := fs.TextDiff(v, a, b)
		if err != nil {
			return nil, err
		}
		return textRecord{Text: diff}, nil
	}
	changes, err := v.Diff(a, b)
	if err != nil {
		return nil, err
	}
	list := make(changeList, len(changes))
	for i, c := range changes {
		list[i] = changeRecord{Action: c.Action.String(), From: c.From, To: c.To}
	}
	return list, nil
}

func executeSubmodules(v fs.View, spec string) (output, error) {
	root, err := getPath(v, spec)
	if err != nil {
		return nil, err
	}
	subs, err := v.Submodules(root)
	if err != nil {
		return nil, err
	}
	list := make(submoduleList, len(subs))
	for i, s := range subs {
		list[i] = submoduleRecord{Name: s.Name, Path: s.Path, URL: s.URL, Branch: s.Branch, Commit: s.Commit}
	}
	return list, nil
}

func executeGraph(v fs.View) (output, error) {
	h, err := v.History()
	if err != nil {
		return nil, err
	}
	edges := h.Graph().Edges()
	list := make(edgeList, len(edges))
	for i, e := range edges {
		list[i] = edgeRecord{Parent: e.From, Child: e.To}
	}
	return list, nil
}

/*
	Read the observed dates, a json object of commit id to RFC3339 date.
*/
func readObserved(src string, stdin io.Reader) (map[plumbing.Hash]time.Time, error) {
	var r io.Reader = stdin
	if src != "" && src != "-" {
		f, err := os.Open(src)
		if err != nil {
			return nil, Errorf(gitfs.ErrIO, "cannot open observed dates: %s", err)
		}
		defer f.Close()
		r = f
	}
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "cannot read observed dates: %s", err)
	}
	var serial map[string]string
	if err := refmt.UnmarshalAtlased(json.DecodeOptions{}, raw, &serial, Atlas); err != nil {
		return nil, Errorf(gitfs.ErrParse, "observed dates must be a json object of commit id to date: %s", err)
	}
	observed := make(map[plumbing.Hash]time.Time, len(serial))
	for k, v := range serial {
		id, err := store.ParseHash(k)
		if err != nil {
			return nil, err
		}
		when, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, Errorf(gitfs.ErrParse, "date for %s: %s", k, err)
		}
		observed[id] = when
	}
	return observed, nil
}

func executeDates(v fs.View, src string, stdin io.Reader) (output, error) {
	observed, err := readObserved(src, stdin)
	if err != nil {
		return nil, err
	}
	h, err := v.History()
	if err != nil {
		return nil, err
	}
	r, err := v.ReconcileDates(observed)
	if err != nil {
		return nil, err
	}
	list := make(dateList, 0, len(r.Dates))
	for _, id := range h.Ordered() {
		rec := dateRecord{Commit: id, Date: r.Dates[id], Origin: r.Origins[id].String()}
		if was, ok := r.Patched[id]; ok {
			rec.Observed = was.UTC().Format(time.RFC3339)
		}
		list = append(list, rec)
	}
	// Reconciled dates can reorder commits; list them in the new order.
	sort.SliceStable(list, func(i, j int) bool { return list[i].Date.Before(list[j].Date) })
	return list, nil
}

/*
	Mount and block until the context is cancelled (by interrupt), then unmount.
*/
func executeMount(ctx context.Context, v fs.View, cli baseCLI, mon gitfs.Monitor) (output, error) {
	mountpoint := cli.Mount
	if mountpoint == "" {
		var err error
		if mountpoint, err = defaultMountpoint(v, cli.Repo); err != nil {
			return nil, err
		}
	}
	server, err := mount.Mount(mount.Options{
		Mountpoint: mountpoint,
		View:       v,
		Monitor:    mon,
	})
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	if err := server.Unmount(); err != nil {
		return nil, Errorf(gitfs.ErrIO, "cannot unmount %s: %s", mountpoint, err)
	}
	return textRecord{Text: mountpoint + "\n"}, nil
}
