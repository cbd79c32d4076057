package fs

import (
	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/store"
)

/*
	Filter decides which entries a DirectoryStream yields.
	An error from the filter becomes the stream's error.
*/
type Filter func(entry Path) (bool, error)

/*
	DirectoryStream lists the direct children of one directory, lazily.

	Nothing is read until the first HasNext.  Only one Iterator may be
	taken.  Once an error happens it's returned from every later call.
	The stream reads ahead by at most one entry, and closing it doesn't
	take back an entry that was already read ahead: that one is still
	returned, after which HasNext reports false.

	Streams are single-consumer, and as unsafe for concurrent use as the
	Filesystem they came from.  Closing the Filesystem closes them.
*/
type DirectoryStream struct {
	fs     *Filesystem
	dir    Path
	filter Filter

	iterated bool
	closed   bool
	loaded   bool
	entries  []store.TreeEntry
	pos      int
	buffered *Path
	err      error
}

/*
	Open a stream over the children of dir.  No I/O happens here;
	a missing or non-directory dir shows up as the stream's error.
	The filter may be nil.
*/
func (f *Filesystem) NewDirectoryStream(dir Path, filter Filter) (*DirectoryStream, error) {
	if err := f.checkOpen(); err != nil {
		return nil, err
	}
	if err := f.checkOwn(dir); err != nil {
		return nil, err
	}
	s := &DirectoryStream{fs: f, dir: dir, filter: filter}
	f.streams[s] = struct{}{}
	return s, nil
}

func (s *DirectoryStream) Dir() Path { return s.dir }

/*
	The stream's one iterator.

	May return errors of category:

	  - `gitfs.ErrUsage` -- if an iterator was already taken
	  - `gitfs.ErrClosed` -- if the stream is closed
*/
func (s *DirectoryStream) Iterator() (*DirectoryIterator, error) {
	if s.closed {
		return nil, Errorf(gitfs.ErrClosed, "directory stream over %s is closed", s.dir)
	}
	if s.iterated {
		return nil, Errorf(gitfs.ErrUsage, "directory stream over %s already has an iterator", s.dir)
	}
	s.iterated = true
	return &DirectoryIterator{s}, nil
}

/*
	Stop reading.  Safe to call more than once.
*/
func (s *DirectoryStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.entries = nil
	delete(s.fs.streams, s)
	return nil
}

func (s *DirectoryStream) load() error {
	obj, err := s.fs.Lookup(s.dir, true)
	if err != nil {
		return err
	}
	if obj.Mode != store.ModeTree {
		return Errorf(gitfs.ErrNotADirectory, "%s is a %s, not a directory", s.dir, obj.Mode)
	}
	s.entries, err = s.fs.store.ListTree(obj.ID)
	return err
}

func (s *DirectoryStream) hasNext() (bool, error) {
	if s.buffered != nil {
		return true, nil
	}
	if s.err != nil {
		return false, s.err
	}
	if s.closed {
		return false, nil
	}
	if !s.loaded {
		s.loaded = true
		if err := s.load(); err != nil {
			s.err = err
			return false, err
		}
	}
	for s.pos < len(s.entries) {
		entry := s.dir.Resolve(Path{fs: s.fs, segs: []string{s.entries[s.pos].Name}})
		s.pos++
		if s.filter != nil {
			ok, err := s.filter(entry)
			if err != nil {
				s.err = err
				return false, err
			}
			if !ok {
				continue
			}
		}
		s.buffered = &entry
		return true, nil
	}
	return false, nil
}

type DirectoryIterator struct {
	s *DirectoryStream
}

/*
	Whether another entry is available.  Reads (and buffers) at most one
	entry; calling it again without Next does not advance.
*/
func (it *DirectoryIterator) HasNext() (bool, error) {
	return it.s.hasNext()
}

/*
	The next entry: dir resolved with the child's name.

	May return errors of category:

	  - `gitfs.ErrUsage` -- if there is no next entry
	  - whatever HasNext would
*/
func (it *DirectoryIterator) Next() (Path, error) {
	ok, err := it.s.hasNext()
	if err != nil {
		return Path{}, err
	}
	if !ok {
		return Path{}, Errorf(gitfs.ErrUsage, "no more entries in %s", it.s.dir)
	}
	p := *it.s.buffered
	it.s.buffered = nil
	return p, nil
}

/*
	Read a whole directory through a stream.  Convenience for callers
	that want a slice.
*/
func ReadDir(v View, dir Path, filter Filter) ([]Path, error) {
	s, err := v.NewDirectoryStream(dir, filter)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	it, err := s.Iterator()
	if err != nil {
		return nil, err
	}
	var result []Path
	for {
		ok, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return result, nil
		}
		p, err := it.Next()
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
}
