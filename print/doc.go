// Package print contains the portable print domain types shared across the
// client manager, the document delegate, transports and the reference
// spooler: print attributes, page ranges, document descriptors, job state and
// installed-service descriptors.
//
// The package is intentionally free of transport and lifecycle logic. Types
// are exported structs with json tags matching the wire representation;
// enumerations are string constants with helper validation functions.
//
// # Content Types
//
// Document and service content types are MIME media types ("application/pdf",
// "image/*"). ValidateContentType checks syntax; ServiceInfo.AcceptsContentType
// performs wildcard-aware matching, which is how a spooler decides whether an
// installed service can take a document.
package print
