package gitfs

/*
	Categories for all errors raised by gitfs.

	Every error returned from a gitfs package is an `errcat.Error`
	whose category is one of these values, so callers can switch
	on `errcat.Category(err)` without string matching.
*/
type ErrorCategory string

const (
	/*
		Raised when a path, ref name, commit id, or URI string is malformed.

		This is a caller bug; retrying will never help.
	*/
	ErrParse = ErrorCategory("gitfs-parse-error")

	/*
		Raised when something simply isn't there: an unresolvable ref,
		a missing path segment, an absent commit, or a root excluded by a filter.

		This is an expected condition, not a fault.
	*/
	ErrNotFound = ErrorCategory("gitfs-not-found")

	/*
		Raised when descending through, or listing, something that is not a tree.
	*/
	ErrNotADirectory = ErrorCategory("gitfs-not-a-directory")

	/*
		Raised when reading content from something that is not a blob.
	*/
	ErrNotAFile = ErrorCategory("gitfs-not-a-file")

	/*
		Raised on any use of a filesystem or stream after it was closed.
	*/
	ErrClosed = ErrorCategory("gitfs-closed")

	/*
		Raised when the object database disagrees with itself:
		a cycle in the commit graph, or an object whose type is not
		what the referring object says it is.

		Fatal for the operation; not retried.
	*/
	ErrIntegrity = ErrorCategory("gitfs-integrity")

	/*
		Raised when an object exists but cannot be decoded.
	*/
	ErrCorrupt = ErrorCategory("gitfs-corrupt")

	/*
		Raised when the local storage fails underneath the object store.
	*/
	ErrIO = ErrorCategory("gitfs-io")

	/*
		Raised when opening a filesystem for a repository identity that
		already has an open filesystem in the same registry.
	*/
	ErrAlreadyExists = ErrorCategory("gitfs-already-exists")

	/*
		Raised for well-formed but unacceptable requests: relativizing
		across roots, iterating a directory stream twice, and the like.
	*/
	ErrUsage = ErrorCategory("gitfs-usage-error")
)

type ExitCode int

const (
	ExitSuccess     = ExitCode(0)
	ExitUsage       = ExitCode(1)
	ExitNotFound    = ExitCode(2)
	ExitWrongType   = ExitCode(3)
	ExitIntegrity   = ExitCode(4)
	ExitIO          = ExitCode(5)
	ExitInterrupted = ExitCode(6)
	ExitUnknown     = ExitCode(99)
)

/*
	Map an error category onto the process exit code the CLI reports.
*/
func ExitCodeForCategory(category interface{}) ExitCode {
	switch category {
	case nil:
		return ExitSuccess
	case ErrParse, ErrUsage, ErrAlreadyExists, ErrClosed:
		return ExitUsage
	case ErrNotFound:
		return ExitNotFound
	case ErrNotADirectory, ErrNotAFile:
		return ExitWrongType
	case ErrIntegrity, ErrCorrupt:
		return ExitIntegrity
	case ErrIO:
		return ExitIO
	default:
		return ExitUnknown
	}
}
