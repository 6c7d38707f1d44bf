package print

import "github.com/elnormous/contenttype"

// ServiceInfo describes an installed print service: a backend the spooler
// can hand finished documents to.
type ServiceInfo struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitzero"`
	// SupportedContentTypes lists the MIME media types the service accepts.
	// Wildcard subtypes are allowed ("image/*"). Empty means the service
	// accepts anything.
	SupportedContentTypes []string `json:"supportedContentTypes,omitempty"`
}

// AcceptsContentType reports whether the service can take a document of the
// given MIME media type. Unparsable inputs are rejected; unparsable entries
// in the supported list are skipped.
func (s *ServiceInfo) AcceptsContentType(ct string) bool {
	doc := contenttype.NewMediaType(ct)
	if doc.Type == "" {
		return false
	}
	if len(s.SupportedContentTypes) == 0 {
		return true
	}
	for _, supported := range s.SupportedContentTypes {
		accepted := contenttype.NewMediaType(supported)
		if accepted.Type == "" {
			continue
		}
		if doc.Matches(accepted) {
			return true
		}
	}
	return false
}
