package main

import (
	"fmt"
	"io"
	"time"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	"github.com/polydawn/refmt/obj/atlas"
	"github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs/store"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

/*
	Every command's output.  The dumb format is one line per item,
	for shells; json is the same records through refmt.
*/
type output interface {
	dumb(w io.Writer)
}

type (
	rootRecord struct {
		Commit plumbing.Hash `refmt:"commit"`
		Date   time.Time     `refmt:"date"`
	}
	refRecord struct {
		Ref    string        `refmt:"ref"`
		Commit plumbing.Hash `refmt:"commit"`
	}
	entryRecord struct {
		Path string        `refmt:"path"`
		Mode string        `refmt:"mode"`
		ID   plumbing.Hash `refmt:"id"`
		Size int64         `refmt:"size"`
		Link string        `refmt:"link,omitempty"`
	}
	changeRecord struct {
		Action string `refmt:"action"`
		From   string `refmt:"from,omitempty"`
		To     string `refmt:"to,omitempty"`
	}
	edgeRecord struct {
		Parent plumbing.Hash `refmt:"parent"`
		Child  plumbing.Hash `refmt:"child"`
	}
	dateRecord struct {
		Commit   plumbing.Hash `refmt:"commit"`
		Date     time.Time     `refmt:"date"`
		Origin   string        `refmt:"origin"`
		Observed string        `refmt:"observed,omitempty"` // only when patched.
	}
	submoduleRecord struct {
		Name   string        `refmt:"name"`
		Path   string        `refmt:"path"`
		URL    string        `refmt:"url"`
		Branch string        `refmt:"branch,omitempty"`
		Commit plumbing.Hash `refmt:"commit"`
	}
	errorRecord struct {
		Category string            `refmt:"category"`
		Message  string            `refmt:"message"`
		Details  map[string]string `refmt:"details,omitempty"`
	}
	textRecord struct {
		Text string `refmt:"text"`
	}

	rootList      []rootRecord
	refList       []refRecord
	entryList     []entryRecord
	changeList    []changeRecord
	edgeList      []edgeRecord
	dateList      []dateRecord
	submoduleList []submoduleRecord

	/*
		The json envelope: exactly one of value or error.
	*/
	result struct {
		Value interface{}  `refmt:"value,omitempty"`
		Error *errorRecord `refmt:"error,omitempty"`
	}
)

var hashAtlasEntry = atlas.BuildEntry(plumbing.Hash{}).Transform().
	TransformMarshal(atlas.MakeMarshalTransformFunc(
		func(x plumbing.Hash) (string, error) {
			return x.String(), nil
		})).
	TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
		func(x string) (plumbing.Hash, error) {
			return store.ParseHash(x)
		})).
	Complete()

var timeAtlasEntry = atlas.BuildEntry(time.Time{}).Transform().
	TransformMarshal(atlas.MakeMarshalTransformFunc(
		func(x time.Time) (string, error) {
			return x.UTC().Format(time.RFC3339), nil
		})).
	TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
		func(x string) (time.Time, error) {
			return time.Parse(time.RFC3339, x)
		})).
	Complete()

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(rootRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(refRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(entryRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(changeRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(edgeRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(dateRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(submoduleRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(errorRecord{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(textRecord{}).StructMap().Autogenerate().Complete(),
	hashAtlasEntry,
	timeAtlasEntry,
)

func (x rootList) dumb(w io.Writer) {
	for _, r := range x {
		fmt.Fprintf(w, "%s %s\n", r.Commit, r.Date.UTC().Format(time.RFC3339))
	}
}

func (x refList) dumb(w io.Writer) {
	for _, r := range x {
		fmt.Fprintf(w, "%s %s\n", r.Commit, r.Ref)
	}
}

func (x entryList) dumb(w io.Writer) {
	for _, e := range x {
		if e.Link != "" {
			fmt.Fprintf(w, "%-10s %8d %s -> %s\n", e.Mode, e.Size, e.Path, e.Link)
			continue
		}
		fmt.Fprintf(w, "%-10s %8d %s\n", e.Mode, e.Size, e.Path)
	}
}

func (x changeList) dumb(w io.Writer) {
	for _, c := range x {
		switch c.Action {
		case store.Insert.String():
			fmt.Fprintf(w, "A %s\n", c.To)
		case store.Delete.String():
			fmt.Fprintf(w, "D %s\n", c.From)
		default:
			fmt.Fprintf(w, "M %s\n", c.To)
		}
	}
}

func (x edgeList) dumb(w io.Writer) {
	for _, e := range x {
		fmt.Fprintf(w, "%s %s\n", e.Parent, e.Child)
	}
}

func (x dateList) dumb(w io.Writer) {
	for _, d := range x {
		fmt.Fprintf(w, "%s %s %s\n", d.Commit, d.Date.UTC().Format(time.RFC3339), d.Origin)
	}
}

func (x submoduleList) dumb(w io.Writer) {
	for _, s := range x {
		fmt.Fprintf(w, "%s %s %s\n", s.Commit, s.Path, s.URL)
	}
}

func (x textRecord) dumb(w io.Writer) {
	io.WriteString(w, x.Text)
}

func toErrorRecord(err error) *errorRecord {
	rec := &errorRecord{Message: err.Error()}
	if cat := errcat.Category(err); cat != nil {
		rec.Category = fmt.Sprint(cat)
	}
	if detailed, ok := err.(errcat.Error); ok {
		rec.Details = detailed.Details()
	}
	return rec
}

/*
	Write a command's output (or error) in the requested format.
	In dumb mode errors go to stderr; in json mode everything is one
	document on stdout.
*/
func SerializeResult(format string, out output, resultErr error, stdout io.Writer, stderr io.Writer) {
	switch format {
	case FmtJson:
		res := result{}
		if resultErr != nil {
			res.Error = toErrorRecord(resultErr)
		} else {
			res.Value = out
		}
		marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, stdout, Atlas)
		if err := marshaller.Marshal(&res); err != nil {
			panic(err)
		}
		fmt.Fprintln(stdout)
	case FmtDumb:
		if resultErr != nil {
			fmt.Fprintln(stderr, resultErr)
		} else if out != nil {
			out.dumb(stdout)
		}
	default:
		panic(fmt.Errorf("gitfs: invalid format %s", format))
	}
}
