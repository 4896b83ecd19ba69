package protect

import "strings"

// validateField splits a "table.column" field reference into its parts.
// The reference must contain exactly one dot, and both parts must be
// non-empty after trimming.
func validateField(field string) (table, column string, err error) {
	parts := strings.Split(field, ".")
	if len(parts) != 2 {
		return "", "", validationErrf(field, "field must be in table.column form")
	}
	if err := validateTableName(parts[0]); err != nil {
		return "", "", validationErrf(field, "invalid table name %q", parts[0])
	}
	if err := validateColumnName(parts[1]); err != nil {
		return "", "", validationErrf(field, "invalid column name %q", parts[1])
	}
	return parts[0], parts[1], nil
}

// validateTableName requires a non-empty string after trimming.
func validateTableName(table string) error {
	if strings.TrimSpace(table) == "" {
		return validationErrf("", "table name must be a non-empty string")
	}
	return nil
}

// validateColumnName requires a non-empty string after trimming.
func validateColumnName(column string) error {
	if strings.TrimSpace(column) == "" {
		return validationErrf("", "column name must be a non-empty string")
	}
	return nil
}

// validateCastAs requires one of the recognized cast tags.
func validateCastAs(castAs string) error {
	switch castAs {
	case CastString, CastBool, CastInt, CastFloat, CastDate, CastArray:
		return nil
	}
	return validationErrf("", "cast_as must be one of string, bool, int, float, date, array, got %q", castAs)
}

// ParseOptions builds FieldOptions from a JSON-decoded option map, for callers
// whose options originate in configuration files or API payloads. Recognized
// keys are cast_as, indexes, context and skip; each present key is
// type-checked. Unrecognized keys are ignored, not errors.
func ParseOptions(m map[string]any) (*FieldOptions, error) {
	opts := &FieldOptions{}
	if m == nil {
		return opts, nil
	}
	if raw, ok := m["cast_as"]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, validationErrf("", "cast_as option must be a string, got %T", raw)
		}
		if err := validateCastAs(s); err != nil {
			return nil, err
		}
		opts.CastAs = s
	}
	if raw, ok := m["indexes"]; ok {
		idx, ok := raw.(map[string]any)
		if !ok {
			return nil, validationErrf("", "indexes option must be a map, got %T", raw)
		}
		opts.Indexes = idx
	}
	if raw, ok := m["context"]; ok {
		ctx, ok := raw.(map[string]any)
		if !ok {
			return nil, validationErrf("", "context option must be a map, got %T", raw)
		}
		opts.Context = ctx
	}
	if raw, ok := m["skip"]; ok {
		skip, ok := raw.(bool)
		if !ok {
			return nil, validationErrf("", "skip option must be a boolean, got %T", raw)
		}
		opts.Skip = skip
	}
	return opts, nil
}

// validateTableMatch enforces that an envelope supplied for a decrypt batch
// was encrypted for the caller-declared table.
func validateTableMatch(table, column string, env *Envelope) error {
	if env.Identifier.Table != table {
		return validationErrf(column, "envelope was encrypted for table %q, not %q",
			env.Identifier.Table, table)
	}
	return nil
}
