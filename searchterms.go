package protect

import (
	"context"
	"encoding/json"
)

// SearchTerm is an engine-produced search payload for one field. Its
// structure belongs to the engine; callers hand it to their query layer
// without inspecting it.
type SearchTerm = json.RawMessage

// CreateSearchTerms produces search terms for a map of "table.column" field
// values in a single bulk engine call. The result maps each field path to its
// SearchTerm. Nil values and fields whose options set Skip (or whose values
// have no wire representation) never reach the engine and come back
// unchanged.
//
// No encryption metadata is registered for this operation; the engine derives
// the term kinds from the items themselves.
func (c *Client) CreateSearchTerms(ctx context.Context, fields map[string]any, options map[string]*FieldOptions) (map[string]any, error) {
	result := make(map[string]any, len(fields))
	var items []encryptItem
	for _, field := range sortedMapKeys(fields) {
		table, column, err := validateField(field)
		if err != nil {
			return nil, err
		}
		value := fields[field]
		if value == nil {
			result[field] = nil
			continue
		}
		detected, supported := DetectDataType(value)
		resolved, err := resolveOptions(options[field], detected, supported)
		if err != nil {
			return nil, err
		}
		if resolved.skip {
			result[field] = value
			continue
		}
		plaintext, err := encodeValue(value, resolved.castAs)
		if err != nil {
			return nil, err
		}
		items = append(items, encryptItem{
			key:       field,
			Plaintext: plaintext,
			Column:    column,
			Table:     table,
			Context:   resolved.context,
		})
	}
	if len(items) == 0 {
		return result, nil
	}

	configJSON, err := marshalEncryptConfig(nil)
	if err != nil {
		return nil, err
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, validationErrf("", "marshal search term items: %v", err)
	}

	engineClient, err := c.engine.NewClient(ctx, configJSON)
	if err != nil {
		return nil, &SearchTermError{Reason: "create engine client", Err: err}
	}
	defer c.releaseEngineClient(engineClient)

	resultsJSON, err := engineClient.CreateSearchTerms(ctx, itemsJSON)
	if err != nil {
		return nil, &SearchTermError{Reason: "engine search term call", Err: err}
	}
	terms, err := parseTermResults(resultsJSON, len(items))
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		result[item.key] = SearchTerm(terms[i])
	}
	c.log.Debug().Int("terms", len(items)).
		Int("passed_through", len(fields)-len(items)).Msg("created search terms")
	return result, nil
}
