package agents

import (
	"errors"
	"fmt"
)

// LoaderErrorKind distinguishes the ways a bundle resolution can fail. None
// of them fall back to a built-in; a broken bundle is a hard error.
type LoaderErrorKind string

const (
	KindManifestEntryMissing LoaderErrorKind = "manifest_entry_missing"
	KindModuleFileMissing    LoaderErrorKind = "module_file_missing"
	KindSymbolMissing        LoaderErrorKind = "symbol_missing"
	KindIdentityMismatch     LoaderErrorKind = "identity_mismatch"
)

type LoaderError struct {
	Kind       LoaderErrorKind
	Profile    string
	BundlePath string
	Err        error
}

func (e *LoaderError) Error() string {
	msg := fmt.Sprintf("resolve profile %s in bundle %s: %s", e.Profile, e.BundlePath, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoaderError) Unwrap() error { return e.Err }

// IsIdentityMismatch reports whether err is a loaded implementation
// self-reporting a different type id than the manifest declared.
func IsIdentityMismatch(err error) bool {
	var loaderErr *LoaderError
	return errors.As(err, &loaderErr) && loaderErr.Kind == KindIdentityMismatch
}

// AsLoaderError extracts a LoaderError from err, if any.
func AsLoaderError(err error) (*LoaderError, bool) {
	var loaderErr *LoaderError
	ok := errors.As(err, &loaderErr)
	return loaderErr, ok
}
