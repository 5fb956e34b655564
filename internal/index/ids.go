package index

import "strings"

// idSanitizer maps characters that collide with ID delimiters in transport
// and storage to underscores.
var idSanitizer = strings.NewReplacer(":", "_", "/", "_", " ", "_")

// SanitizeID normalizes a document ID. Sanitization is deterministic, so the
// same upstream record always maps to the same index ID.
func SanitizeID(id string) string {
	return idSanitizer.Replace(id)
}
