package fs

import (
	"strings"

	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/rev"
)

// Meta: paths are values.  Nothing here does I/O; anything that needs to
// know what a path's root currently points at goes through the Filesystem.

/*
	Shape is the closed set of forms a Path can take.
	Switches over it should be exhaustive.
*/
type Shape uint8

const (
	// Absolute with zero segments: "/refs/heads/main//".
	ShapeRootOnly = Shape(iota + 1)
	// Absolute with one or more segments: "/refs/heads/main//a/b".
	ShapeAbsolute
	// The empty relative path: "".  Implicitly the default root's top directory.
	ShapeEmpty
	// Relative with one or more non-empty segments: "a/b".
	ShapeRelative
)

func (s Shape) String() string {
	switch s {
	case ShapeRootOnly:
		return "root-only"
	case ShapeAbsolute:
		return "absolute"
	case ShapeEmpty:
		return "empty"
	case ShapeRelative:
		return "relative"
	default:
		return "invalid"
	}
}

/*
	Path is an immutable location in a Filesystem: an optional root (which
	commit) plus the names leading down the tree from there.

	Absolute paths have a root and never have empty segments.
	Relative paths have no root; the empty path is the one relative path
	whose sole segment is the empty string.

	The zero Path is the empty path, attached to no filesystem.
*/
type Path struct {
	fs   *Filesystem
	root rev.Rev
	segs []string // never mutated after construction; never contains "" (the empty path holds nil).
}

func (p Path) Filesystem() *Filesystem { return p.fs }

func (p Path) Shape() Shape {
	switch {
	case !p.root.IsZero() && len(p.segs) == 0:
		return ShapeRootOnly
	case !p.root.IsZero():
		return ShapeAbsolute
	case len(p.segs) == 0:
		return ShapeEmpty
	default:
		return ShapeRelative
	}
}

func (p Path) IsAbsolute() bool { return !p.root.IsZero() }

/*
	The root rev.  Zero for relative paths.
*/
func (p Path) Root() rev.Rev { return p.root }

/*
	The root-only path of this path's root, if it has one.
*/
func (p Path) RootPath() (Path, bool) {
	if p.root.IsZero() {
		return Path{}, false
	}
	return Path{fs: p.fs, root: p.root}, true
}

/*
	The last segment.  Root-only paths have no file name;
	the empty path's file name is the empty string.
*/
func (p Path) FileName() (string, bool) {
	switch p.Shape() {
	case ShapeRootOnly:
		return "", false
	case ShapeEmpty:
		return "", true
	default:
		return p.segs[len(p.segs)-1], true
	}
}

/*
	The path minus its last segment.

	A single-segment absolute path's parent is its root-only path.
	Root-only paths, the empty path, and single-segment relative paths
	have no parent.
*/
func (p Path) Parent() (Path, bool) {
	switch p.Shape() {
	case ShapeAbsolute:
		return Path{fs: p.fs, root: p.root, segs: p.segs[:len(p.segs)-1]}, true
	case ShapeRelative:
		if len(p.segs) == 1 {
			return Path{}, false
		}
		return Path{fs: p.fs, segs: p.segs[:len(p.segs)-1]}, true
	default:
		return Path{}, false
	}
}

/*
	The segments, as a fresh slice.
	The empty path reports a single empty-string segment.
*/
func (p Path) Segments() []string {
	if p.Shape() == ShapeEmpty {
		return []string{""}
	}
	return append([]string(nil), p.segs...)
}

func (p Path) NameCount() int {
	if p.Shape() == ShapeEmpty {
		return 1
	}
	return len(p.segs)
}

/*
	The i'th segment.  Panics if out of range, like indexing a slice.
*/
func (p Path) Name(i int) string {
	if p.Shape() == ShapeEmpty && i == 0 {
		return ""
	}
	return p.segs[i]
}

/*
	The relative path made of segments [begin, end).  The empty path has
	one (empty) name, so its only subpath is [0, 1), itself.
*/
func (p Path) Subpath(begin, end int) (Path, error) {
	if p.Shape() == ShapeEmpty && begin == 0 && end == 1 {
		return Path{fs: p.fs}, nil
	}
	if begin < 0 || end > len(p.segs) || begin >= end {
		return Path{}, Errorf(gitfs.ErrUsage, "subpath [%d:%d) out of range for %q", begin, end, p)
	}
	return Path{fs: p.fs, segs: p.segs[begin:end:end]}, nil
}

/*
	True if other is a prefix of p: same filesystem, same literal root,
	and other's segments lead p's.
*/
func (p Path) StartsWith(other Path) bool {
	if p.fs != other.fs || p.root != other.root {
		return false
	}
	a, b := p.Segments(), other.Segments()
	if len(b) > len(a) {
		return false
	}
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

/*
	True if other is a suffix of p.
	An absolute other only matches a path equal to it.
*/
func (p Path) EndsWith(other Path) bool {
	if p.fs != other.fs {
		return false
	}
	if other.IsAbsolute() {
		return p.Equal(other)
	}
	a, b := p.Segments(), other.Segments()
	if len(b) > len(a) {
		return false
	}
	off := len(a) - len(b)
	for i := range b {
		if a[off+i] != b[i] {
			return false
		}
	}
	return true
}

/*
	Anchor a relative path at the default root.  Absolute paths are returned unchanged.
*/
func (p Path) ToAbsolute() Path {
	if p.IsAbsolute() {
		return p
	}
	return Path{fs: p.fs, root: rev.Default, segs: p.segs}
}

/*
	Append other to p.

	An absolute other is returned as-is; the empty path leaves p unchanged.
*/
func (p Path) Resolve(other Path) Path {
	switch other.Shape() {
	case ShapeRootOnly, ShapeAbsolute:
		return other
	case ShapeEmpty:
		return p
	}
	segs := make([]string, 0, len(p.segs)+len(other.segs))
	segs = append(segs, p.segs...)
	segs = append(segs, other.segs...)
	return Path{fs: p.fs, root: p.root, segs: segs}
}

/*
	Parse s on p's filesystem, then Resolve it against p.
*/
func (p Path) ResolveString(s string) (Path, error) {
	other, err := parsePath(p.fs, s)
	if err != nil {
		return Path{}, err
	}
	return p.Resolve(other), nil
}

/*
	Resolve other against p's parent.  Without a parent, other is returned.
*/
func (p Path) ResolveSibling(other Path) Path {
	parent, ok := p.Parent()
	if !ok {
		return other
	}
	return parent.Resolve(other)
}

/*
	The relative path that leads from p to other, such that
	p.Resolve(p.Relativize(other)) names the same thing as other.

	Both paths must belong to the same filesystem, and be either both
	relative or both absolute.  Absolute paths must have the same literal
	root: a ref and a commit id are different roots, even if the ref
	currently points at that commit.
*/
func (p Path) Relativize(other Path) (Path, error) {
	if p.fs != other.fs {
		return Path{}, Errorf(gitfs.ErrUsage, "cannot relativize %q against a path from another filesystem", other)
	}
	if p.IsAbsolute() != other.IsAbsolute() {
		return Path{}, Errorf(gitfs.ErrUsage, "cannot relativize between absolute and relative paths (%q, %q)", p, other)
	}
	if p.root != other.root {
		return Path{}, Errorf(gitfs.ErrUsage, "cannot relativize across roots %s and %s", p.root, other.root)
	}
	common := 0
	for common < len(p.segs) && common < len(other.segs) && p.segs[common] == other.segs[common] {
		common++
	}
	segs := make([]string, 0, len(p.segs)-common+len(other.segs)-common)
	for i := common; i < len(p.segs); i++ {
		segs = append(segs, "..")
	}
	segs = append(segs, other.segs[common:]...)
	if len(segs) == 0 {
		segs = nil
	}
	return Path{fs: p.fs, segs: segs}, nil
}

/*
	Remove "." segments and every ".." that can be cancelled.

	Purely lexical; symlinks are not consulted.  A ".." at an absolute
	root has nowhere to go and is dropped; leading ".." segments of a
	relative path are kept.  A relative path that cancels out entirely
	becomes the empty path.
*/
func (p Path) Normalize() Path {
	segs := normalizeSegments(p.segs, p.IsAbsolute())
	return Path{fs: p.fs, root: p.root, segs: segs}
}

func normalizeSegments(in []string, absolute bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		switch s {
		case ".":
			// skip
		case "..":
			switch {
			case len(out) > 0 && out[len(out)-1] != "..":
				out = out[:len(out)-1]
			case absolute:
				// nowhere above the root.
			default:
				out = append(out, "..")
			}
		default:
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

/*
	Order by canonical string form, byte-wise.  Absolute paths start with
	a slash, so they sort before relative ones (except the empty path).
	This is an ordering of names, not of time.
*/
func (p Path) Compare(other Path) int {
	return strings.Compare(p.String(), other.String())
}

/*
	Same filesystem, same literal root, same (case-sensitive) segments.
*/
func (p Path) Equal(other Path) bool {
	if p.fs != other.fs || p.root != other.root || len(p.segs) != len(other.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != other.segs[i] {
			return false
		}
	}
	return true
}

/*
	The path inside the root's tree, slash-joined, without the root.
*/
func (p Path) internal() string {
	return strings.Join(p.segs, "/")
}

/*
	Absolute: the root form, a slash, then the segments ("/refs/heads/main//a/b").
	Root-only paths thus end in "//".  Relative: the joined segments.
	The empty path is "".
*/
func (p Path) String() string {
	if p.IsAbsolute() {
		return p.root.String() + "/" + p.internal()
	}
	return p.internal()
}

/*
	Parse a path string.

	  - "" is the empty path.
	  - Anything not starting with a slash is relative; empty segments are dropped.
	  - Anything starting with a slash must be a root form followed by a
	    slash ("/refs/heads/main//..." or "/<commit id>//..."); the rest
	    is split into segments, dropping empty ones.  A bare root form
	    ("/refs/heads/main/") is the root-only path.

	Ref names can contain neither "//" nor a trailing slash, so the first
	"//" always ends the root.
*/
func parsePath(fs *Filesystem, spec string) (Path, error) {
	if spec == "" {
		return Path{fs: fs}, nil
	}
	if spec[0] != '/' {
		return Path{fs: fs, segs: splitSegments(spec)}, nil
	}
	i := strings.Index(spec, "//")
	if i < 0 {
		if !strings.HasSuffix(spec, "/") {
			return Path{}, Errorf(gitfs.ErrParse, "absolute path %q must have a root followed by %q", spec, "//")
		}
		// Just a root form, as Rev.String prints it: the root-only path.
		root, err := rev.ParseRootString(spec)
		if err != nil {
			return Path{}, err
		}
		return Path{fs: fs, root: root}, nil
	}
	root, err := rev.ParseRootString(spec[:i+1])
	if err != nil {
		return Path{}, err
	}
	return Path{fs: fs, root: root, segs: splitSegments(spec[i+2:])}, nil
}

func splitSegments(s string) []string {
	var segs []string
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

/*
	Join a path spec from parts, the way GetPath does: more is appended to
	first with slashes.
*/
func joinSpec(first string, more []string) string {
	spec := first
	for _, m := range more {
		if m == "" {
			continue
		}
		if spec == "" {
			spec = m
		} else {
			spec += "/" + m
		}
	}
	return spec
}
