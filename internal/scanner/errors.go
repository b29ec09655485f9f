package scanner

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a scan failed.
type FailureKind int

const (
	// IOFailure is a remote, server or network failure. It is expected to be
	// transient and triggers a filesystem health check.
	IOFailure FailureKind = iota + 1
	// OtherFailure is anything not anticipated: bad catalog content,
	// programming errors, unexpected state.
	OtherFailure
)

func (k FailureKind) String() string {
	switch k {
	case IOFailure:
		return "io"
	case OtherFailure:
		return "other"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// ScanError is the failure result of ScanOperation.Scan.
type ScanError struct {
	Kind   FailureKind
	Region string
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s (%s failure): %v", e.Region, e.Kind, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// IOError marks err as an I/O-category failure of region.
func IOError(region string, err error) error {
	return &ScanError{Kind: IOFailure, Region: region, Err: err}
}

// OtherError marks err as an unanticipated failure of region.
func OtherError(region string, err error) error {
	return &ScanError{Kind: OtherFailure, Region: region, Err: err}
}

// KindOf returns the failure kind carried by err. Errors that were never
// classified count as OtherFailure.
func KindOf(err error) FailureKind {
	var se *ScanError
	if errors.As(err, &se) && se.Kind != 0 {
		return se.Kind
	}
	return OtherFailure
}
