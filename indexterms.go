package protect

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Index terms are deterministic HMAC-SHA256 tokens: same plaintext + same
// key = same token, which enables database lookups without exposing the
// plaintext. Every index kind here is an equality derivation; range and
// membership semantics belong to a production engine.

// Term kind prefixes separate the keyed-hash domains per index kind.
const (
	termKindUnique = "unique"
	termKindOre    = "ore"
	termKindMatch  = "match"
	termKindSteVec = "ste_vec"
)

// hmacTerm computes the hex HMAC-SHA256 token for one datum within a term
// kind's domain.
func hmacTerm(key *[32]byte, kind, data string) string {
	h := hmac.New(sha256.New, key[:])
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// uniqueTerm computes the exact-match token for a plaintext.
func uniqueTerm(key *[32]byte, plaintext string) string {
	return hmacTerm(key, termKindUnique, plaintext)
}

// oreTerms computes the ordering token array for a plaintext. The array
// carries a single equality token; a production engine emits a comparable
// encoding here.
func oreTerms(key *[32]byte, plaintext string) []string {
	return []string{hmacTerm(key, termKindOre, plaintext)}
}

// matchTerms computes one token per normalized word of the plaintext, for
// containment-style queries.
func matchTerms(key *[32]byte, plaintext string) []string {
	tokens := matchTokens(plaintext)
	terms := make([]string, len(tokens))
	for i, token := range tokens {
		terms[i] = hmacTerm(key, termKindMatch, token)
	}
	return terms
}

// matchTokens normalizes a plaintext into its searchable words: lowercase,
// split on anything that is not a letter or digit, dedupe, sort.
//
// IMPORTANT: the same normalization runs on both write and search. Changing
// it breaks lookups against existing rows.
func matchTokens(plaintext string) []string {
	fields := strings.FieldsFunc(strings.ToLower(plaintext), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		tokens = append(tokens, field)
	}
	sort.Strings(tokens)
	return tokens
}

// steVecEntry is one selector/token pair of a structured-vector index.
type steVecEntry struct {
	Selector string `json:"s"`
	Term     string `json:"t"`
}

// steVecTerms flattens a JSON document into selector paths ("$.a.b[0]") and
// computes one token per leaf, bound to its selector. Non-JSON plaintexts
// degrade to a single root-leaf entry.
func steVecTerms(key *[32]byte, plaintext string) []steVecEntry {
	var root any
	if err := json.Unmarshal([]byte(plaintext), &root); err != nil {
		return []steVecEntry{steVecLeaf(key, "$", plaintext)}
	}
	entries := []steVecEntry{}
	flattenLeaves("$", root, func(selector, leaf string) {
		entries = append(entries, steVecLeaf(key, selector, leaf))
	})
	return entries
}

func steVecLeaf(key *[32]byte, selector, leaf string) steVecEntry {
	return steVecEntry{
		Selector: selector,
		Term:     hmacTerm(key, termKindSteVec, selector+"\x00"+leaf),
	}
}

// flattenLeaves walks a decoded JSON value depth-first, emitting each scalar
// leaf with its selector path. Object keys are visited in sorted order so
// the entry order is deterministic.
func flattenLeaves(selector string, node any, emit func(selector, leaf string)) {
	switch v := node.(type) {
	case map[string]any:
		for _, k := range sortedMapKeys(v) {
			flattenLeaves(selector+"."+k, v[k], emit)
		}
	case []any:
		for i, item := range v {
			flattenLeaves(selector+"["+strconv.Itoa(i)+"]", item, emit)
		}
	default:
		emit(selector, leafString(v))
	}
}

// leafString renders a JSON scalar the way its search form would be typed.
func leafString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
