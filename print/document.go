package print

import (
	"errors"
	"fmt"

	"github.com/elnormous/contenttype"
)

// PageCountUnknown marks a document whose final page count is not yet known
// at layout time.
const PageCountUnknown = -1

// DocumentInfo describes a laid-out document: its display name, the MIME
// media type of the rendered output, and the page count (or
// PageCountUnknown). Application logic produces one on every successful
// layout.
type DocumentInfo struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitzero"`
	PageCount   int    `json:"pageCount"`
}

var errEmptyContentType = errors.New("empty content type")

// ValidateContentType reports whether s is a syntactically valid MIME media
// type.
func ValidateContentType(s string) error {
	if s == "" {
		return errEmptyContentType
	}
	if mt := contenttype.NewMediaType(s); mt.Type == "" {
		return fmt.Errorf("invalid content type %q", s)
	}
	return nil
}

// Validate checks the structural rules for a document descriptor: non-empty
// name, a parsable content type when set, and a positive or unknown page
// count.
func (d *DocumentInfo) Validate() error {
	if d == nil {
		return errors.New("nil document info")
	}
	if d.Name == "" {
		return errors.New("document name must not be empty")
	}
	if d.ContentType != "" {
		if err := ValidateContentType(d.ContentType); err != nil {
			return err
		}
	}
	if d.PageCount <= 0 && d.PageCount != PageCountUnknown {
		return fmt.Errorf("page count must be positive or unknown, got %d", d.PageCount)
	}
	return nil
}
