// Package version derives content fingerprints for documents.
package version

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/emrgen/docrender/internal/model"
)

// Length is the length of every version token.
var Length = base64.StdEncoding.EncodedLen(sha256.Size)

// Version returns the fingerprint of a document's source in the given language.
// The same inputs always produce the same token.
func Version(source string, language model.Language) string {
	hash := sha256.Sum256([]byte(source + language.String()))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// Stamp recomputes the document's current version from its source and language.
func Stamp(doc *model.Document) string {
	doc.CurrentVersion = Version(doc.SourceCode, doc.Language)
	return doc.CurrentVersion
}
