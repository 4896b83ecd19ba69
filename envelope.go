package protect

import "encoding/json"

// envelopeVersion is the envelope format version the engine emits.
const envelopeVersion = 2

// envelopeKindCiphertext marks a ciphertext-carrying envelope.
const envelopeKindCiphertext = "ct"

// Identifier records the table and column an envelope was encrypted for.
type Identifier struct {
	Table  string `json:"t"`
	Column string `json:"c"`
}

// Envelope is the encrypted value record exchanged with the engine and with
// application storage. The index payloads (hm, ob, bf, sv) are computed by
// the engine and carried here as raw JSON: this package configures their
// presence but never interprets their contents, and they round-trip through
// decrypt merges untouched.
type Envelope struct {
	Kind        string          `json:"k,omitempty"`
	Ciphertext  string          `json:"c"`
	DataType    DataType        `json:"dt"`
	UniqueHash  json.RawMessage `json:"hm,omitempty"`
	OreIndex    json.RawMessage `json:"ob,omitempty"`
	BloomFilter json.RawMessage `json:"bf,omitempty"`
	SteVec      json.RawMessage `json:"sv,omitempty"`
	Identifier  Identifier      `json:"i"`
	Version     int             `json:"v"`
}

// envelopeFromAny validates and normalizes the envelope forms callers hold:
// an *Envelope or Envelope, a JSON-decoded map, raw JSON bytes, or a JSON
// string. Anything else is a validation failure.
func envelopeFromAny(value any) (*Envelope, error) {
	switch v := value.(type) {
	case *Envelope:
		if v == nil {
			return nil, validationErrf("", "envelope must not be nil")
		}
		if err := validateEnvelope(v); err != nil {
			return nil, err
		}
		return v, nil
	case Envelope:
		if err := validateEnvelope(&v); err != nil {
			return nil, err
		}
		return &v, nil
	case map[string]any:
		return envelopeFromMap(v)
	case json.RawMessage:
		return envelopeFromJSON([]byte(v))
	case []byte:
		return envelopeFromJSON(v)
	case string:
		return envelopeFromJSON([]byte(v))
	}
	return nil, validationErrf("", "value of type %T is not an envelope", value)
}

func envelopeFromJSON(b []byte) (*Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, validationErrf("", "envelope is not valid JSON: %v", err)
	}
	return envelopeFromMap(m)
}

// envelopeFromMap checks the dynamic shape field by field so that a missing
// field, a wrong type, and an unrecognized value each fail with their own
// reason, then decodes into the typed form. The raw map is re-encoded rather
// than copied so the opaque index payloads survive unexamined.
func envelopeFromMap(m map[string]any) (*Envelope, error) {
	if err := validateEnvelopeMap(m); err != nil {
		return nil, err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, validationErrf("", "envelope cannot be re-encoded: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, validationErrf("", "envelope shape is invalid: %v", err)
	}
	return &env, nil
}

// validateEnvelope checks a typed envelope: present non-empty ciphertext, a
// recognized wire data type, and a complete identifier.
func validateEnvelope(env *Envelope) error {
	if env.Ciphertext == "" {
		return validationErrf("", "envelope is missing ciphertext")
	}
	if env.DataType == "" {
		return validationErrf("", "envelope is missing data type")
	}
	if _, ok := parseDataType(string(env.DataType)); !ok {
		return validationErrf("", "envelope has unrecognized data type %q", string(env.DataType))
	}
	if err := validateTableName(env.Identifier.Table); err != nil {
		return validationErrf("", "envelope identifier is missing table name")
	}
	if err := validateColumnName(env.Identifier.Column); err != nil {
		return validationErrf("", "envelope identifier is missing column name")
	}
	return nil
}

func validateEnvelopeMap(m map[string]any) error {
	rawC, ok := m["c"]
	if !ok {
		return validationErrf("", "envelope is missing ciphertext")
	}
	c, ok := rawC.(string)
	if !ok {
		return validationErrf("", "envelope ciphertext must be a string, got %T", rawC)
	}
	if c == "" {
		return validationErrf("", "envelope ciphertext must not be empty")
	}

	rawDT, ok := m["dt"]
	if !ok {
		return validationErrf("", "envelope is missing data type")
	}
	dt, ok := rawDT.(string)
	if !ok {
		return validationErrf("", "envelope data type must be a string, got %T", rawDT)
	}
	if _, ok := parseDataType(dt); !ok {
		return validationErrf("", "envelope has unrecognized data type %q", dt)
	}

	rawI, ok := m["i"]
	if !ok {
		return validationErrf("", "envelope is missing identifier")
	}
	ident, ok := rawI.(map[string]any)
	if !ok {
		return validationErrf("", "envelope identifier must be a map, got %T", rawI)
	}
	table, ok := ident["t"].(string)
	if !ok || validateTableName(table) != nil {
		return validationErrf("", "envelope identifier is missing table name")
	}
	column, ok := ident["c"].(string)
	if !ok || validateColumnName(column) != nil {
		return validationErrf("", "envelope identifier is missing column name")
	}
	return nil
}
