package protect

import (
	"context"
	"encoding/json"
)

// EncryptAttributes encrypts a map of column values belonging to one table in
// a single bulk engine call. The result maps each column to its envelope.
// Nil values and columns whose options set Skip (or whose values have no wire
// representation) never reach the engine and come back unchanged.
//
// The options map is keyed by column name; columns without an entry use the
// defaults for their detected type.
func (c *Client) EncryptAttributes(ctx context.Context, table string, attributes map[string]any, options map[string]*FieldOptions) (map[string]any, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	result := make(map[string]any, len(attributes))
	var (
		items  []encryptItem
		fields []FieldConfig
	)
	for _, column := range sortedMapKeys(attributes) {
		if err := validateColumnName(column); err != nil {
			return nil, err
		}
		value := attributes[column]
		if value == nil {
			result[column] = nil
			continue
		}
		detected, supported := DetectDataType(value)
		resolved, err := resolveOptions(options[column], detected, supported)
		if err != nil {
			return nil, err
		}
		if resolved.skip {
			result[column] = value
			continue
		}
		plaintext, err := encodeValue(value, resolved.castAs)
		if err != nil {
			return nil, err
		}
		items = append(items, encryptItem{
			key:       column,
			Plaintext: plaintext,
			Column:    column,
			Table:     table,
			Context:   resolved.context,
		})
		fields = append(fields, FieldConfig{
			Table:   table,
			Column:  column,
			CastAs:  resolved.castAs,
			Indexes: resolved.indexes,
		})
	}
	if len(items) == 0 {
		return result, nil
	}

	configJSON, err := marshalEncryptConfig(fields)
	if err != nil {
		return nil, err
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, validationErrf("", "marshal bulk encrypt items: %v", err)
	}

	engineClient, err := c.engine.NewClient(ctx, configJSON)
	if err != nil {
		return nil, &EncryptError{Reason: "create engine client", Err: err}
	}
	defer c.releaseEngineClient(engineClient)

	resultsJSON, err := engineClient.EncryptBulk(ctx, itemsJSON)
	if err != nil {
		return nil, &EncryptError{Reason: "engine bulk encrypt call", Err: err}
	}
	envelopes, err := parseEnvelopeResults(resultsJSON, len(items))
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		result[item.key] = envelopes[i]
	}
	c.log.Debug().Str("table", table).Int("encrypted", len(items)).
		Int("passed_through", len(attributes)-len(items)).Msg("encrypted attributes")
	return result, nil
}

// DecryptAttributes decrypts a map of column envelopes belonging to one table
// in a single bulk engine call. Every envelope's embedded table identity must
// match the declared table. Nil values and columns whose options set Skip
// come back unchanged; skipped values are never inspected, so they need not
// be envelopes at all.
func (c *Client) DecryptAttributes(ctx context.Context, table string, attributes map[string]any, options map[string]*FieldOptions) (map[string]any, error) {
	if err := validateTableName(table); err != nil {
		return nil, err
	}

	result := make(map[string]any, len(attributes))
	var items []decryptItem
	for _, column := range sortedMapKeys(attributes) {
		if err := validateColumnName(column); err != nil {
			return nil, err
		}
		value := attributes[column]
		if value == nil {
			result[column] = nil
			continue
		}
		opts := options[column]
		if opts != nil && opts.Skip {
			result[column] = value
			continue
		}
		env, err := envelopeFromAny(value)
		if err != nil {
			return nil, err
		}
		if err := validateTableMatch(table, column, env); err != nil {
			return nil, err
		}
		var callContext map[string]any
		if opts != nil {
			callContext = opts.Context
		}
		items = append(items, decryptItem{
			key:        column,
			dataType:   env.DataType,
			Ciphertext: env.Ciphertext,
			Context:    callContext,
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
		return nil, validationErrf("", "marshal bulk decrypt items: %v", err)
	}

	engineClient, err := c.engine.NewClient(ctx, configJSON)
	if err != nil {
		return nil, &DecryptError{Reason: "create engine client", Err: err}
	}
	defer c.releaseEngineClient(engineClient)

	resultsJSON, err := engineClient.DecryptBulk(ctx, itemsJSON)
	if err != nil {
		return nil, &DecryptError{Reason: "engine bulk decrypt call", Err: err}
	}
	plaintexts, err := parsePlaintextResults(resultsJSON, len(items))
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		decoded, err := decodeValue(plaintexts[i], item.dataType)
		if err != nil {
			return nil, err
		}
		result[item.key] = decoded
	}
	c.log.Debug().Str("table", table).Int("decrypted", len(items)).
		Int("passed_through", len(attributes)-len(items)).Msg("decrypted attributes")
	return result, nil
}
