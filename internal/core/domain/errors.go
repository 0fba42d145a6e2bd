package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrClassificationFailed = errors.New("classification failed")
	ErrUnsupportedFileKind  = errors.New("unsupported file kind")
	ErrValidation           = errors.New("validation failed")
	ErrUploadIntegrity      = errors.New("upload integrity mismatch")
	ErrOCRJobFailed         = errors.New("ocr job failed")
	ErrOCRJobTimeout        = errors.New("ocr job timed out")
	ErrSave                 = errors.New("save failed")
	ErrDuplicate            = errors.New("duplicate source")
	ErrPromotionConflict    = errors.New("promotion conflict")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKind is the stable name persisted on an UploadItem for the failure that
// moved it to error.
type ErrorKind string

const (
	ErrorKindNone                 ErrorKind = ""
	ErrorKindClassificationFailed ErrorKind = "classification_failed"
	ErrorKindUnsupportedFile      ErrorKind = "unsupported_file_kind"
	ErrorKindValidation           ErrorKind = "validation"
	ErrorKindUploadIntegrity      ErrorKind = "upload_integrity"
	ErrorKindOCRFailed            ErrorKind = "ocr_job_failed"
	ErrorKindOCRTimeout           ErrorKind = "ocr_job_timeout"
	ErrorKindSave                 ErrorKind = "save"
	ErrorKindTemporary            ErrorKind = "temporary"
	ErrorKindUnknown              ErrorKind = "unknown"
)

var errorKinds = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrClassificationFailed, ErrorKindClassificationFailed},
	{ErrUnsupportedFileKind, ErrorKindUnsupportedFile},
	{ErrUploadIntegrity, ErrorKindUploadIntegrity},
	{ErrOCRJobTimeout, ErrorKindOCRTimeout},
	{ErrOCRJobFailed, ErrorKindOCRFailed},
	{ErrSave, ErrorKindSave},
	{ErrValidation, ErrorKindValidation},
	{ErrTemporary, ErrorKindTemporary},
}

// KindOf maps an error chain to its ErrorKind. The first matching sentinel in
// declaration order wins.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return ErrorKindUnknown
}

// GuidanceFor returns the operator hint shown next to a failed item.
func GuidanceFor(kind ErrorKind) string {
	switch kind {
	case ErrorKindClassificationFailed:
		return "select the document type and parser manually"
	case ErrorKindUnsupportedFile:
		return "this file type cannot be imported"
	case ErrorKindUploadIntegrity:
		return "restart the upload from the beginning"
	case ErrorKindOCRFailed:
		return "extraction failed, retry with a clearer scan"
	case ErrorKindOCRTimeout:
		return "extraction did not finish, check OCR worker health"
	case ErrorKindSave:
		return "discard this item and upload the original file again"
	case ErrorKindValidation:
		return "fix the rejected rows and revalidate"
	case ErrorKindTemporary:
		return "the service is unavailable, try again later"
	default:
		return ""
	}
}

// ClassificationFailedError carries every strategy failure of one classification
// attempt.
type ClassificationFailedError struct {
	Causes []error
}

func (e *ClassificationFailedError) Error() string {
	if e == nil || len(e.Causes) == 0 {
		return ErrClassificationFailed.Error()
	}
	parts := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		parts = append(parts, c.Error())
	}
	return fmt.Sprintf("%s: %s", ErrClassificationFailed, strings.Join(parts, "; "))
}

func (e *ClassificationFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Causes)+1)
	out = append(out, ErrClassificationFailed)
	out = append(out, e.Causes...)
	return out
}
