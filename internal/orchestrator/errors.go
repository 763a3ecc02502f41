package orchestrator

import "errors"

var (
	ErrInvalidWorkerCount = errors.New("worker count out of range")
	ErrAlreadyDownloading = errors.New("a download is already in progress")
	ErrSizeNotAvailable   = errors.New("resource size not available")
	ErrOpenDestination    = errors.New("cannot open destination file")
	ErrClosed             = errors.New("orchestrator is closed")
)
