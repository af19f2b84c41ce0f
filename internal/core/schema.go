package core

// InferSchema maps every column of t to a logical type.
// The result depends only on each column's own kind and values.
func InferSchema(t Table) Schema {
	schema := make(Schema, len(t.Columns))
	for _, c := range t.Columns {
		schema[c.Name] = LogicalTypeOf(ColumnKindOf(c))
	}
	return schema
}

// LogicalTypeOf maps a column kind to its schema type.
// Anything that is not a recognised scalar kind is a string.
func LogicalTypeOf(kind ColumnKind) LogicalType {
	switch kind {
	case ColumnInteger:
		return TypeInteger
	case ColumnFloat:
		return TypeFloat
	case ColumnBool:
		return TypeBoolean
	case ColumnDatetime:
		return TypeDatetime
	default:
		return TypeString
	}
}

// ColumnKindOf returns the declared kind of c, or detects it from the
// non-null values when c.Kind is ColumnUnknown.
//
// Detection: all strings is ColumnString, all booleans is ColumnBool, all
// numbers is ColumnInteger unless one has a fraction (ColumnFloat). Any mix
// of variants is ColumnMixed. A column with no values at all is ColumnString.
func ColumnKindOf(c Column) ColumnKind {
	if c.Kind != ColumnUnknown {
		return c.Kind
	}

	var seen ValueKind
	integral := true
	for _, v := range c.Values {
		if v.IsNull() {
			continue
		}
		if seen == KindNull {
			seen = v.Kind()
		} else if seen != v.Kind() {
			return ColumnMixed
		}
		if v.Kind() == KindNumber && !v.isIntegral() {
			integral = false
		}
	}

	switch seen {
	case KindNumber:
		if integral {
			return ColumnInteger
		}
		return ColumnFloat
	case KindBool:
		return ColumnBool
	default:
		return ColumnString
	}
}
