/*
	The mount package presents an fs.View as a read-only FUSE filesystem.

	The mount has two top-level directories:

	  commits/<id>/...      every commit root, by full hex id
	  refs/heads/main/...   every ref root, one directory per name segment

	Ref directories are looked up fresh each time the kernel asks, so a
	moved ref shows its new commit once the kernel's entry cache expires.

	Filesystems are not safe for concurrent use, and FUSE calls arrive
	concurrently, so every call into the View holds one mutex.
*/
package mount

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/fs"
	"go.polydawn.net/gitfs/log"
	"go.polydawn.net/gitfs/rev"
	"go.polydawn.net/gitfs/store"
)

type Options struct {
	Mountpoint string
	View       fs.View

	// Mu guards every call into View.  Callers that also use the View
	// themselves while it is mounted must pass the mutex they hold for
	// it; if nil, the mount makes its own.
	Mu *sync.Mutex

	// How long the kernel may cache lookups and attributes.
	// Ref directories go stale for at most this long.  Zero means one second.
	CacheTimeout time.Duration

	// Permit other users to read the mount.
	// Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	Monitor gitfs.Monitor
}

/*
	Mount the view.  The caller must Unmount the returned server.
	The mountpoint is created if it does not exist.

	May return errors of category:

	  - `gitfs.ErrUsage` -- if the mountpoint or view is missing
	  - `gitfs.ErrIO` -- if the mountpoint can't be made, or mounting fails
*/
func Mount(opts Options) (*fuse.Server, error) {
	if opts.Mountpoint == "" {
		return nil, Errorf(gitfs.ErrUsage, "mountpoint is required")
	}
	if opts.View == nil {
		return nil, Errorf(gitfs.ErrUsage, "view is required")
	}
	if opts.Mu == nil {
		opts.Mu = &sync.Mutex{}
	}
	if opts.CacheTimeout == 0 {
		opts.CacheTimeout = time.Second
	}
	if err := os.MkdirAll(opts.Mountpoint, 0755); err != nil {
		return nil, Errorf(gitfs.ErrIO, "cannot create mountpoint %s: %s", opts.Mountpoint, err)
	}

	timeout := opts.CacheTimeout
	server, err := gofuse.Mount(opts.Mountpoint, &rootNode{m: &session{opts}}, &gofuse.Options{
		EntryTimeout:    &timeout,
		AttrTimeout:     &timeout,
		NegativeTimeout: &timeout,
		MountOptions: fuse.MountOptions{
			FsName:     opts.View.Filesystem().Identity(),
			Name:       "gitfs",
			AllowOther: opts.AllowOther,
		},
	})
	if err != nil {
		return nil, Errorf(gitfs.ErrIO, "cannot mount at %s: %s", opts.Mountpoint, err)
	}
	return server, nil
}

type session struct {
	Options
}

func (m *session) lock() func() {
	m.Mu.Lock()
	return m.Mu.Unlock
}

/*
	Translate an error to an errno.  Anything unexpected is logged, since
	the kernel will only ever show the caller EIO.
*/
func (m *session) errno(op string, p fs.Path, err error) syscall.Errno {
	errno := errnoOf(err)
	if errno == syscall.EIO {
		log.MountError(m.Monitor, op, p.String(), err)
	}
	return errno
}

func errnoOf(err error) syscall.Errno {
	switch Category(err) {
	case nil:
		return 0
	case gitfs.ErrNotFound:
		return syscall.ENOENT
	case gitfs.ErrNotADirectory:
		return syscall.ENOTDIR
	case gitfs.ErrNotAFile:
		return syscall.EISDIR
	case gitfs.ErrUsage:
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

func fillAttr(out *fuse.Attr, meta fs.Metadata) {
	mode := meta.FileMode()
	out.Mode = uint32(mode.Perm())
	switch {
	case mode.IsDir():
		out.Mode |= syscall.S_IFDIR
	case mode&os.ModeSymlink != 0:
		out.Mode |= syscall.S_IFLNK
		out.Size = uint64(len(meta.Linkname))
	default:
		out.Mode |= syscall.S_IFREG
		out.Size = uint64(meta.Size)
	}
	out.Nlink = 1
	out.SetTimes(&meta.ModTime, &meta.ModTime, &meta.ModTime)
}

func dirEntryMode(meta fs.Metadata) uint32 {
	var a fuse.Attr
	fillAttr(&a, meta)
	return a.Mode &^ 07777
}

/*
	The node for whatever is at p (not following a final symlink).
*/
func (m *session) nodeFor(ctx context.Context, parent *gofuse.Inode, p fs.Path, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	meta, err := m.View.Stat(p, false)
	if err != nil {
		return nil, m.errno("lookup", p, err)
	}
	fillAttr(&out.Attr, meta)
	var node gofuse.InodeEmbedder
	switch meta.Mode {
	case store.ModeTree:
		node = &treeNode{m: m, path: p}
	case store.ModeSubmodule:
		node = &emptyNode{}
	case store.ModeSymlink:
		node = &linkNode{m: m, path: p}
	default:
		node = &fileNode{m: m, path: p}
	}
	return parent.NewInode(ctx, node, gofuse.StableAttr{Mode: out.Attr.Mode &^ 07777}), 0
}

type rootNode struct {
	gofuse.Inode
	m *session
}

var _ gofuse.NodeOnAdder = (*rootNode)(nil)

func (r *rootNode) OnAdd(ctx context.Context) {
	commits := r.NewPersistentInode(ctx, &commitsNode{m: r.m}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	r.AddChild("commits", commits, true)
	refs := r.NewPersistentInode(ctx, &refsNode{m: r.m, prefix: "refs/"}, gofuse.StableAttr{Mode: syscall.S_IFDIR})
	r.AddChild("refs", refs, true)
}

/*
	"commits/": one directory per commit the view lists.
*/
type commitsNode struct {
	gofuse.Inode
	m *session
}

var _ gofuse.NodeLookuper = (*commitsNode)(nil)
var _ gofuse.NodeReaddirer = (*commitsNode)(nil)

func (c *commitsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	r, err := rev.ParseCommitID(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	defer c.m.lock()()
	return c.m.nodeFor(ctx, &c.Inode, c.m.View.Filesystem().RootOf(r), out)
}

func (c *commitsNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	defer c.m.lock()()
	roots, err := c.m.View.ListRoots()
	if err != nil {
		return nil, c.m.errno("readdir", c.m.View.Filesystem().EmptyPath(), err)
	}
	entries := make([]fuse.DirEntry, len(roots))
	for i, root := range roots {
		entries[i] = fuse.DirEntry{Name: root.Root().Bare(), Mode: syscall.S_IFDIR}
	}
	return gofuse.NewListDirStream(entries), 0
}

/*
	A directory in the ref namespace: "refs/", "refs/heads/", and so on.
	A name that is a whole ref becomes that ref's root.
*/
type refsNode struct {
	gofuse.Inode
	m      *session
	prefix string
}

var _ gofuse.NodeLookuper = (*refsNode)(nil)
var _ gofuse.NodeReaddirer = (*refsNode)(nil)

func (n *refsNode) refNames() ([]string, error) {
	refs, err := n.m.View.Refs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = string(ref.Root().RefName())
	}
	return names, nil
}

func (n *refsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	defer n.m.lock()()
	names, err := n.refNames()
	if err != nil {
		return nil, n.m.errno("lookup", n.m.View.Filesystem().EmptyPath(), err)
	}
	full := n.prefix + name
	for _, ref := range names {
		switch {
		case ref == full:
			r, err := rev.Ref(full)
			if err != nil {
				return nil, syscall.ENOENT
			}
			return n.m.nodeFor(ctx, &n.Inode, n.m.View.Filesystem().RootOf(r), out)
		case strings.HasPrefix(ref, full+"/"):
			out.Attr.Mode = syscall.S_IFDIR | 0555
			return n.NewInode(ctx, &refsNode{m: n.m, prefix: full + "/"}, gofuse.StableAttr{Mode: syscall.S_IFDIR}), 0
		}
	}
	return nil, syscall.ENOENT
}

func (n *refsNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	defer n.m.lock()()
	names, err := n.refNames()
	if err != nil {
		return nil, n.m.errno("readdir", n.m.View.Filesystem().EmptyPath(), err)
	}
	return gofuse.NewListDirStream(refChildren(names, n.prefix)), 0
}

/*
	The immediate children of prefix in a set of ref names.
	Every child is a directory: either a ref root or a deeper prefix.
*/
func refChildren(names []string, prefix string) []fuse.DirEntry {
	seen := map[string]bool{}
	var children []string
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		child := strings.TrimPrefix(name, prefix)
		if i := strings.IndexByte(child, '/'); i >= 0 {
			child = child[:i]
		}
		if child == "" || seen[child] {
			continue
		}
		seen[child] = true
		children = append(children, child)
	}
	sort.Strings(children)
	entries := make([]fuse.DirEntry, len(children))
	for i, child := range children {
		entries[i] = fuse.DirEntry{Name: child, Mode: syscall.S_IFDIR}
	}
	return entries
}

/*
	A tree inside some root.
*/
type treeNode struct {
	gofuse.Inode
	m    *session
	path fs.Path
}

var _ gofuse.NodeLookuper = (*treeNode)(nil)
var _ gofuse.NodeReaddirer = (*treeNode)(nil)
var _ gofuse.NodeGetattrer = (*treeNode)(nil)

func (t *treeNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	defer t.m.lock()()
	child, err := t.path.ResolveString(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	return t.m.nodeFor(ctx, &t.Inode, child, out)
}

func (t *treeNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	defer t.m.lock()()
	children, err := fs.ReadDir(t.m.View, t.path, nil)
	if err != nil {
		return nil, t.m.errno("readdir", t.path, err)
	}
	entries := make([]fuse.DirEntry, 0, len(children))
	for _, child := range children {
		meta, err := t.m.View.Stat(child, false)
		if err != nil {
			return nil, t.m.errno("readdir", child, err)
		}
		entries = append(entries, fuse.DirEntry{Name: meta.Name, Mode: dirEntryMode(meta)})
	}
	return gofuse.NewListDirStream(entries), 0
}

func (t *treeNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	defer t.m.lock()()
	meta, err := t.m.View.Stat(t.path, false)
	if err != nil {
		return t.m.errno("getattr", t.path, err)
	}
	fillAttr(&out.Attr, meta)
	return 0
}

/*
	A submodule: an empty directory, since the commit it names lives in
	another repository.
*/
type emptyNode struct {
	gofuse.Inode
}

type linkNode struct {
	gofuse.Inode
	m    *session
	path fs.Path
}

var _ gofuse.NodeReadlinker = (*linkNode)(nil)

func (l *linkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	defer l.m.lock()()
	target, err := l.m.View.ReadLink(l.path)
	if err != nil {
		return nil, l.m.errno("readlink", l.path, err)
	}
	return []byte(target), 0
}

/*
	A file.  Under a commit root the content never changes, so it is
	read from the view once and kept for the node's lifetime.  Under a
	ref root every read asks the view again.
*/
type fileNode struct {
	gofuse.Inode
	m    *session
	path fs.Path
	body []byte // nil until first read.
}

var _ gofuse.NodeOpener = (*fileNode)(nil)
var _ gofuse.NodeReader = (*fileNode)(nil)
var _ gofuse.NodeGetattrer = (*fileNode)(nil)

func (n *fileNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	// Content under a fixed path may still change if its root is a ref,
	// so the kernel's page cache is only kept for commit roots.
	if n.path.ToAbsolute().Root().IsCommitID() {
		return nil, fuse.FOPEN_KEEP_CACHE, 0
	}
	return nil, 0, 0
}

func (n *fileNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	defer n.m.lock()()
	body := n.body
	if body == nil {
		var err error
		body, err = n.m.View.ReadBytes(n.path)
		if err != nil {
			return nil, n.m.errno("read", n.path, err)
		}
		if n.path.ToAbsolute().Root().IsCommitID() {
			n.body = body
		}
	}
	return fuse.ReadResultData(sliceAt(body, dest, off)), 0
}

func (n *fileNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	defer n.m.lock()()
	meta, err := n.m.View.Stat(n.path, false)
	if err != nil {
		return n.m.errno("getattr", n.path, err)
	}
	fillAttr(&out.Attr, meta)
	return 0
}

/*
	The part of body a read of len(dest) bytes at off sees.
*/
func sliceAt(body []byte, dest []byte, off int64) []byte {
	if off < 0 || off >= int64(len(body)) {
		return nil
	}
	end := off + int64(len(dest))
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return body[off:end]
}
