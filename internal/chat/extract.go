package chat

import (
	"regexp"
	"strings"
)

// The model is instructed to cite documents as
// [Document ID: <hex>, Document Version ID: <hex>] but in practice emits
// several variant formats and several languages. Extraction therefore runs an
// ordered cascade of strategies and returns the first tier that yields any
// references; results are never merged across tiers. This cascade, the tier
// order, and the 24-hex token shape are a compatibility contract with the
// model's citation convention.

const hexToken = `\b([0-9a-fA-F]{24})\b`

// Label variants for "document id" and "document version id", matched
// case-insensitively. English, Spanish and French are the languages the model
// has been observed citing in.
const (
	docLabels = `(?:document\s+id|documento\s+id|id\s+del\s+documento|id\s+du\s+document|document|documento)`
	verLabels = `(?:document\s+version\s+id|documento\s+versi[oó]n\s+id|id\s+de\s+versi[oó]n\s+del\s+documento|id\s+de\s+version\s+du\s+document|versi[oó]n\s+id|versi[oó]n)`
)

var (
	reBracket  = regexp.MustCompile(`\[[^\[\]]*\]`)
	reDocToken = regexp.MustCompile(`(?i)\b` + docLabels + `\b\s*[:#]?\s*` + hexToken)
	reVerToken = regexp.MustCompile(`(?i)\b` + verLabels + `\b\s*[:#]?\s*` + hexToken)

	// Same-line pair: doc token, then a separator (dash, comma, or a
	// whitespace run), then the version label and token.
	reSameLinePair = regexp.MustCompile(`(?i)\b` + docLabels + `\b\s*[:#]?\s*` + hexToken +
		`(?:[ \t]*[-,][ \t]*|[ \t]+)` + verLabels + `\b\s*[:#]?\s*` + hexToken)

	// Loose variants for the positional fallback: the label may be
	// separated from its token by up to 40 characters of prose on the same
	// line ("el ID del documento es <hex>"). The bare document/documento
	// forms are excluded here so a prose gap cannot swallow a version
	// label.
	reDocLoose = regexp.MustCompile(`(?i)\b(?:document\s+id|documento\s+id|id\s+del\s+documento|id\s+du\s+document)\b[^\n]{0,40}?` + hexToken)
	reVerLoose = regexp.MustCompile(`(?i)\b` + verLabels + `\b[^\n]{0,40}?` + hexToken)
)

// extractStrategy recovers references from reply text; a nil or empty result
// means the strategy found nothing and the next tier runs.
type extractStrategy func(text string) []DocumentReference

// strategies in strict priority order.
var strategies = []extractStrategy{
	extractBracketedPairs,
	extractLineAdjacent,
	extractSameLinePairs,
	extractPositional,
}

// ExtractReferences recovers (document id, version id) pairs from model reply
// text, in order of first occurrence. An empty result is a normal outcome,
// not a failure.
func ExtractReferences(text string) []DocumentReference {
	for _, strategy := range strategies {
		if refs := strategy(text); len(refs) > 0 {
			return refs
		}
	}
	return nil
}

// docTokens finds document-id tokens in text, skipping matches that sit
// inside a version-id label (the bare document/documento label forms would
// otherwise match the tail of "id de version du document: <hex>").
func docTokens(text string) []string {
	verSpans := reVerToken.FindAllStringIndex(text, -1)

	var out []string
	for _, m := range reDocToken.FindAllStringSubmatchIndex(text, -1) {
		if overlapsAny(m[0], m[1], verSpans) {
			continue
		}
		out = append(out, text[m[2]:m[3]])
	}
	return out
}

func overlapsAny(start, end int, spans [][]int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// extractBracketedPairs matches single bracketed spans containing both a
// document-id and a version-id label with tokens, in either order. Each
// bracket yields one reference.
func extractBracketedPairs(text string) []DocumentReference {
	var refs []DocumentReference
	for _, span := range reBracket.FindAllString(text, -1) {
		ver := reVerToken.FindStringSubmatch(span)
		if ver == nil {
			continue
		}
		docs := docTokens(span)
		if len(docs) == 0 {
			continue
		}
		refs = append(refs, DocumentReference{DocumentID: docs[0], VersionID: ver[1]})
	}
	return refs
}

// extractLineAdjacent scans lines in order; each line carrying a document-id
// token is paired with a version-id token found within the next 4 lines. If
// no version is found in that window the reference degrades to a
// self-referential pair rather than dropping the citation.
func extractLineAdjacent(text string) []DocumentReference {
	lines := strings.Split(text, "\n")

	var refs []DocumentReference
	for i, line := range lines {
		docs := docTokens(line)
		if len(docs) == 0 {
			continue
		}

		ver := ""
		for j := i + 1; j <= i+4 && j < len(lines); j++ {
			if vm := reVerToken.FindStringSubmatch(lines[j]); vm != nil {
				ver = vm[1]
				break
			}
		}

		for _, doc := range docs {
			versionID := ver
			if versionID == "" {
				versionID = doc
			}
			refs = append(refs, DocumentReference{DocumentID: doc, VersionID: versionID})
		}
	}
	return refs
}

// extractSameLinePairs matches a document token followed on the same line by
// a separator and a version token.
func extractSameLinePairs(text string) []DocumentReference {
	var refs []DocumentReference
	for _, line := range strings.Split(text, "\n") {
		for _, m := range reSameLinePair.FindAllStringSubmatch(line, -1) {
			refs = append(refs, DocumentReference{DocumentID: m[1], VersionID: m[2]})
		}
	}
	return refs
}

// extractPositional collects every document-id token and every version-id
// token independently and pairs them by position. Unmatched tail document ids
// pair with themselves. Pairing by raw position can mispair when the counts
// diverge structurally; downstream callers depend on this behavior, so it is
// kept as-is.
func extractPositional(text string) []DocumentReference {
	docs := reDocLoose.FindAllStringSubmatch(text, -1)
	if len(docs) == 0 {
		return nil
	}
	vers := reVerLoose.FindAllStringSubmatch(text, -1)

	refs := make([]DocumentReference, 0, len(docs))
	for i, dm := range docs {
		versionID := dm[1]
		if i < len(vers) {
			versionID = vers[i][1]
		}
		refs = append(refs, DocumentReference{DocumentID: dm[1], VersionID: versionID})
	}
	return refs
}
