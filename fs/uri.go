package fs

import (
	"net/url"
	"strings"

	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/rev"
)

const (
	URIScheme = "gitfs"

	identityFilePrefix = "file:"
	identityMemPrefix  = "mem:"

	queryRoot         = "root"
	queryInternalPath = "internal-path"
)

/*
	The URI form of a path:

	  gitfs:///abs/repo/dir?root=%2Frefs%2Fheads%2Fmain%2F&internal-path=a/b
	  gitfs:mem:some%20name?root=...&internal-path=a/b

	The root parameter is omitted for relative paths.
	Slashes in the internal path are left unescaped.
*/
func (p Path) URI() string {
	var base string
	if p.fs != nil {
		base = identityURI(p.fs.identity)
	} else {
		base = URIScheme + ":"
	}
	var query []string
	if p.IsAbsolute() {
		query = append(query, queryRoot+"="+url.QueryEscape(p.root.String()))
	}
	query = append(query, queryInternalPath+"="+strings.Replace(url.QueryEscape(p.internal()), "%2F", "/", -1))
	return base + "?" + strings.Join(query, "&")
}

func identityURI(identity string) string {
	switch {
	case strings.HasPrefix(identity, identityFilePrefix):
		u := url.URL{Scheme: URIScheme, Path: strings.TrimPrefix(identity, identityFilePrefix)}
		return u.String()
	case strings.HasPrefix(identity, identityMemPrefix):
		return URIScheme + ":" + identityMemPrefix + url.PathEscape(strings.TrimPrefix(identity, identityMemPrefix))
	default:
		panic("unreachable: registry admits no other identities")
	}
}

/*
	Split a gitfs URI into the identity of the filesystem it names and
	the path spec parts.  No filesystem is consulted.
*/
func parseURI(uri string) (identity string, root rev.Rev, internal string, absolute bool, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", rev.Rev{}, "", false, Errorf(gitfs.ErrParse, "invalid uri %q: %s", uri, err)
	}
	if u.Scheme != URIScheme {
		return "", rev.Rev{}, "", false, Errorf(gitfs.ErrParse, "uri %q is not a %s uri", uri, URIScheme)
	}
	switch {
	case strings.HasPrefix(u.Opaque, identityMemPrefix):
		name, err := url.PathUnescape(strings.TrimPrefix(u.Opaque, identityMemPrefix))
		if err != nil {
			return "", rev.Rev{}, "", false, Errorf(gitfs.ErrParse, "invalid repository name in uri %q: %s", uri, err)
		}
		identity = identityMemPrefix + name
	case u.Opaque == "" && u.Host == "" && strings.HasPrefix(u.Path, "/"):
		identity = identityFilePrefix + u.Path
	default:
		return "", rev.Rev{}, "", false, Errorf(gitfs.ErrParse, "uri %q names neither a directory nor an in-memory repository", uri)
	}
	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", rev.Rev{}, "", false, Errorf(gitfs.ErrParse, "invalid query in uri %q: %s", uri, err)
	}
	if rootStr, ok := query[queryRoot]; ok {
		root, err = rev.ParseRootString(rootStr[0])
		if err != nil {
			return "", rev.Rev{}, "", false, err
		}
		absolute = true
	}
	internal = query.Get(queryInternalPath)
	return identity, root, internal, absolute, nil
}
