package protect

import (
	"encoding/json"
	"sort"
)

// encryptItem is one unit of a bulk encrypt or search term call. The key
// remembers which column or field the item came from; it stays out of the
// wire payload, and the engine's order-preserving contract carries the
// correspondence instead.
type encryptItem struct {
	key string

	Plaintext string         `json:"plaintext"`
	Column    string         `json:"column"`
	Table     string         `json:"table"`
	Context   map[string]any `json:"context,omitempty"`
}

// decryptItem is one unit of a bulk decrypt call.
type decryptItem struct {
	key      string
	dataType DataType

	Ciphertext string         `json:"ciphertext"`
	Context    map[string]any `json:"context,omitempty"`
}

// sortedMapKeys returns map keys sorted alphabetically. Batch payloads are
// built over sorted keys so the engine sees a deterministic item order.
func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// checkResultCount enforces the bulk merge invariant: the engine must return
// exactly one result per submitted item. A mismatch aborts the merge.
func checkResultCount(submitted, returned int) error {
	if submitted != returned {
		return &ValidationError{
			Reason:   "engine result count does not match submitted item count",
			Expected: submitted,
			Actual:   returned,
		}
	}
	return nil
}

// parseEnvelopeResults decodes a bulk encrypt response, asserting the count
// invariant before validating any envelope.
func parseEnvelopeResults(resultsJSON []byte, submitted int) ([]*Envelope, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(resultsJSON, &raw); err != nil {
		return nil, validationErrf("", "engine returned malformed envelope array: %v", err)
	}
	if err := checkResultCount(submitted, len(raw)); err != nil {
		return nil, err
	}
	envs := make([]*Envelope, len(raw))
	for i, r := range raw {
		env, err := envelopeFromJSON(r)
		if err != nil {
			return nil, err
		}
		envs[i] = env
	}
	return envs, nil
}

// parsePlaintextResults decodes a bulk decrypt response.
func parsePlaintextResults(resultsJSON []byte, submitted int) ([]string, error) {
	var plaintexts []string
	if err := json.Unmarshal(resultsJSON, &plaintexts); err != nil {
		return nil, validationErrf("", "engine returned malformed plaintext array: %v", err)
	}
	if err := checkResultCount(submitted, len(plaintexts)); err != nil {
		return nil, err
	}
	return plaintexts, nil
}

// parseTermResults decodes a search term response. Terms are opaque payloads;
// only the count invariant is enforced.
func parseTermResults(resultsJSON []byte, submitted int) ([]json.RawMessage, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(resultsJSON, &raw); err != nil {
		return nil, validationErrf("", "engine returned malformed search term array: %v", err)
	}
	if err := checkResultCount(submitted, len(raw)); err != nil {
		return nil, err
	}
	return raw, nil
}
