// Package embedded provides access to embedded data files.
package embedded

import _ "embed"

// StopwordsData contains the embedded stop-word list YAML used by concept
// extraction.
//
//go:embed stopwords.yaml
var StopwordsData []byte
