/*
	gitfs exposes the content of a git repository, at any commit,
	as a read-only hierarchical filesystem, straight out of the object
	database and without a checkout.

	The root package holds only the shared vocabulary: error categories,
	exit codes, and the monitor event types.  The interesting parts live in:

	  - `rev` -- the root component of a path: a ref name or a commit id.
	  - `fs` -- paths, the filesystem facade, directory streams, and the registry.
	  - `store` -- the object store adapter over go-git.
	  - `graph` and `history` -- the commit DAG and date reconciliation.
	  - `filter` -- a predicate-restricted view over a filesystem.
	  - `mount` -- a read-only FUSE adapter.
*/
package gitfs
