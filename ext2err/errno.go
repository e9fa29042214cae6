// Package ext2err is a compatibility shim for the POSIX-ish errno codes the
// simulator needs. It mirrors the errno catalog used elsewhere in the
// toolchain rather than reaching for [syscall.Errno] directly, since several
// of these conditions (e.g. a busy mount point, a directory that isn't
// empty) don't map cleanly onto a single platform-portable errno constant.
package ext2err

// DiskoError is a bare errno-style sentinel. Wrap it with WithMessage or
// WrapError to attach context before returning it to a caller.
type DiskoError string

const ErrAlreadyInProgress = DiskoError("operation already in progress")
const ErrBusy = DiskoError("device or resource busy")
const ErrCrossDeviceLink = DiskoError("invalid cross-device link")
const ErrDirectoryNotEmpty = DiskoError("directory not empty")
const ErrExists = DiskoError("file exists")
const ErrFileSystemCorrupted = DiskoError("structure needs cleaning")
const ErrFileTooLarge = DiskoError("file too large")
const ErrInvalidArgument = DiskoError("invalid argument")
const ErrInvalidFileDescriptor = DiskoError("bad file descriptor")
const ErrIsADirectory = DiskoError("is a directory")
const ErrLinkCycleDetected = DiskoError("symlink cycle detected")
const ErrNameTooLong = DiskoError("file name too long")
const ErrNoSpaceOnDevice = DiskoError("no space left on device")
const ErrNotADirectory = DiskoError("not a directory")
const ErrNotFound = DiskoError("no such file or directory")
const ErrNotPermitted = DiskoError("operation not permitted")
const ErrNotSupported = DiskoError("operation not supported")
const ErrReadOnlyFileSystem = DiskoError("read-only file system")
const ErrTooManyLinks = DiskoError("too many links")
const ErrTooManyOpenFiles = DiskoError("too many open files")

func (e DiskoError) Error() string {
	return string(e)
}

// WithMessage attaches a custom message to the errno sentinel, preserving
// the sentinel for comparison via errors.Is/errors.As through Unwrap.
func (e DiskoError) WithMessage(message string) DriverError {
	return customDriverError{message: message, original: e}
}

// WrapError wraps an unrelated error underneath this errno sentinel.
func (e DiskoError) WrapError(err error) DriverError {
	return customDriverError{
		message:  e.Error() + ": " + err.Error(),
		original: err,
	}
}
