package usecase

import (
	"fmt"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

// Route is the processing path of one file.
type Route string

const (
	RouteInline  Route = "inline"
	RouteChunked Route = "chunked"
	RouteOCR     Route = "ocr"
)

// RouteFor picks the processing path from the file name, declared content
// type and size. Delimited and spreadsheet files above threshold go through
// the chunked transfer; XML always does.
func RouteFor(name, declaredType string, size, threshold int64) (Route, domain.FileKind, error) {
	kind := domain.DetectKind(name, declaredType)
	switch kind {
	case domain.KindDelimited, domain.KindSpreadsheet:
		if size > threshold {
			return RouteChunked, kind, nil
		}
		return RouteInline, kind, nil
	case domain.KindXML:
		return RouteChunked, kind, nil
	case domain.KindPDF, domain.KindImage:
		return RouteOCR, kind, nil
	}
	return "", kind, domain.WrapError(domain.ErrUnsupportedFileKind, "route file", fmt.Errorf("%s (%s)", name, declaredType))
}
