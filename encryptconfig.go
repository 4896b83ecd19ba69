package protect

import "encoding/json"

// configVersion is the encrypt configuration format version the engine
// understands.
const configVersion = 2

// FieldConfig is the per-column encryption configuration assembled before a
// data operation: which wire type the column stores and which indexes the
// engine should compute for it.
type FieldConfig struct {
	Table   string
	Column  string
	CastAs  DataType
	Indexes map[string]any
}

// ColumnConfig is the engine-facing shape of one column's configuration.
type ColumnConfig struct {
	CastAs  DataType       `json:"cast_as"`
	Indexes map[string]any `json:"indexes"`
}

// EncryptConfig is the versioned configuration payload sent to the engine
// when a client is created. Tables maps table name to column name to column
// configuration.
type EncryptConfig struct {
	Version int                                `json:"v"`
	Tables  map[string]map[string]ColumnConfig `json:"tables"`
}

// buildEncryptConfig aggregates field configurations into one EncryptConfig,
// grouping by table then column. Index settings are normalized so that an
// absent or empty settings value always serializes as a JSON object, never an
// array or null; the engine's parser requires object-shaped settings.
//
// Building with no fields yields the valid minimal configuration used by
// decrypt and search term operations, which add no encryption metadata.
func buildEncryptConfig(fields []FieldConfig) EncryptConfig {
	cfg := EncryptConfig{
		Version: configVersion,
		Tables:  make(map[string]map[string]ColumnConfig, len(fields)),
	}
	for _, f := range fields {
		columns, ok := cfg.Tables[f.Table]
		if !ok {
			columns = make(map[string]ColumnConfig)
			cfg.Tables[f.Table] = columns
		}
		columns[f.Column] = ColumnConfig{
			CastAs:  f.CastAs,
			Indexes: normalizeIndexes(f.Indexes),
		}
	}
	return cfg
}

// normalizeIndexes copies an index mapping, rewriting empty settings into
// empty objects. Callers that hold options decoded from JSON may carry empty
// arrays where empty objects are meant; both forms mean "no settings".
func normalizeIndexes(indexes map[string]any) map[string]any {
	normalized := make(map[string]any, len(indexes))
	for name, settings := range indexes {
		normalized[name] = normalizeIndexSettings(settings)
	}
	return normalized
}

func normalizeIndexSettings(settings any) any {
	switch s := settings.(type) {
	case nil:
		return map[string]any{}
	case []any:
		if len(s) == 0 {
			return map[string]any{}
		}
	case map[string]any:
		if s == nil {
			return map[string]any{}
		}
	}
	return settings
}

// marshalEncryptConfig renders the configuration as the JSON payload passed
// to Engine.NewClient.
func marshalEncryptConfig(fields []FieldConfig) ([]byte, error) {
	b, err := json.Marshal(buildEncryptConfig(fields))
	if err != nil {
		return nil, conversionErrf("", err, "encode encrypt configuration")
	}
	return b, nil
}

// parseEncryptConfig decodes and checks a configuration payload. Engine
// implementations use it to reject malformed or unsupported configurations at
// client creation.
func parseEncryptConfig(configJSON []byte) (EncryptConfig, error) {
	var cfg EncryptConfig
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return EncryptConfig{}, ErrConfigRejected
	}
	if cfg.Version != configVersion {
		return EncryptConfig{}, ErrConfigRejected
	}
	return cfg, nil
}
