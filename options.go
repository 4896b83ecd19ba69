package protect

// Cast tags callers may supply to override the detected data type.
const (
	CastString = "string"
	CastBool   = "bool"
	CastInt    = "int"
	CastFloat  = "float"
	CastDate   = "date"
	CastArray  = "array"
)

// Index names recognized by the engine. The engine computes the index
// payloads; this package only configures which ones to request.
const (
	IndexUnique = "unique"
	IndexOre    = "ore"
	IndexMatch  = "match"
	IndexSteVec = "ste_vec"
)

// FieldOptions adjusts how a single field or column is encrypted.
//
// A nil *FieldOptions means "all defaults". Within the struct, absence is
// modeled by zero values: an empty CastAs derives the cast from the value, a
// nil Indexes map selects the type-driven default index set, and a nil
// Context binds no encryption context. A non-nil empty Indexes map is
// meaningful: it disables indexing for the field entirely.
type FieldOptions struct {
	// CastAs forces the wire data type. One of the Cast constants.
	CastAs string

	// Indexes maps index names to index-specific settings. nil selects the
	// defaults for the detected type; an empty non-nil map disables all
	// indexes.
	Indexes map[string]any

	// Context is an opaque mapping bound into encryption. Decrypting with a
	// different context fails. Never defaulted.
	Context map[string]any

	// Skip excludes the field from bulk operations, passing its value
	// through unchanged. Ignored by the single-value operations.
	Skip bool
}

// resolvedOptions is the fully resolved per-field configuration produced by
// merging caller options with type-derived defaults.
type resolvedOptions struct {
	castAs  DataType
	indexes map[string]any
	context map[string]any
	skip    bool
}

// resolveOptions merges caller options with the defaults derived from the
// detected data type. detected carries DetectDataType's result; when the
// value is unsupported the resolution collapses to a skipping text field so
// the value is passed through rather than sent to the engine.
func resolveOptions(opts *FieldOptions, detected DataType, supported bool) (resolvedOptions, error) {
	if !supported {
		return resolvedOptions{castAs: TypeText, indexes: map[string]any{}, skip: true}, nil
	}
	if opts == nil {
		opts = &FieldOptions{}
	}

	castAs := detected
	if opts.CastAs != "" {
		if err := validateCastAs(opts.CastAs); err != nil {
			return resolvedOptions{}, err
		}
		castAs = applyCast(opts.CastAs, detected)
	}

	indexes := opts.Indexes
	if indexes == nil {
		indexes = defaultIndexes(castAs)
	}

	return resolvedOptions{
		castAs:  castAs,
		indexes: indexes,
		context: opts.Context,
		skip:    opts.Skip,
	}, nil
}

// applyCast maps a caller cast tag onto a wire type. The numeric tags keep
// the width the detection already established; a non-numeric detected type
// falls back to the widest common default.
func applyCast(castAs string, detected DataType) DataType {
	switch castAs {
	case CastString:
		return TypeText
	case CastBool:
		return TypeBoolean
	case CastInt:
		switch detected {
		case TypeSmallInt, TypeInt, TypeBigInt:
			return detected
		}
		return TypeInt
	case CastFloat:
		switch detected {
		case TypeReal, TypeDouble:
			return detected
		}
		return TypeReal
	case CastDate:
		return TypeDate
	case CastArray:
		return TypeJsonb
	}
	return detected
}
