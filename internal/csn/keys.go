package csn

// keySuffixes is the priority-ordered list of suffixes tried when inferring
// a key from column names. The empty suffix matches a column named exactly
// after the entity.
var keySuffixes = []string{"", "ID", "Key", "Code", "Number"}

// InferKeys runs the key-inference pass over every entity in the set. It is
// called once on load, after all entities are decoded.
//
// Priority order:
//  1. declared key fields (key=true in CSN)
//  2. a column whose name is the entity short name plus one of the
//     suffixes {"", "ID", "Key", "Code", "Number"}
//  3. the first declared non-nullable field, flagged as synthetic
//
// Key fields are forced non-nullable; a declared nullable key produces a
// warning instead of a failure.
func InferKeys(set *SchemaSet) {
	for _, e := range set.Entities() {
		inferEntityKey(set, e)
	}
}

func inferEntityKey(set *SchemaSet, e *Entity) {
	// Declared keys win.
	var declared []string
	for _, f := range e.Fields {
		if f.Key {
			declared = append(declared, f.Name)
		}
	}
	if len(declared) > 0 {
		e.KeyFields = declared
		forceNonNullable(set, e)
		return
	}

	// Column-name heuristics against the entity short name.
	for _, suffix := range keySuffixes {
		want := e.Name + suffix
		if f, ok := e.Field(want); ok {
			f.Key = true
			e.KeyFields = []string{f.Name}
			forceNonNullable(set, e)
			return
		}
	}

	// Fall back to the first non-nullable field. The key is synthetic:
	// downstream components may treat it as less trustworthy.
	for i := range e.Fields {
		if !e.Fields[i].Nullable {
			e.Fields[i].Key = true
			e.KeyFields = []string{e.Fields[i].Name}
			e.SyntheticKey = true
			return
		}
	}

	// Last resort: first field, whatever its nullability.
	if len(e.Fields) > 0 {
		e.Fields[0].Key = true
		e.Fields[0].Nullable = false
		e.KeyFields = []string{e.Fields[0].Name}
		e.SyntheticKey = true
		set.AddWarning(e.FQN(), "no non-nullable field available, using %q as synthetic key", e.Fields[0].Name)
	}
}

// forceNonNullable enforces the invariant that key fields are non-nullable.
func forceNonNullable(set *SchemaSet, e *Entity) {
	for _, k := range e.KeyFields {
		f, ok := e.Field(k)
		if !ok {
			continue
		}
		if f.Nullable {
			f.Nullable = false
			set.AddWarning(e.FQN(), "key field %q declared nullable, forcing non-nullable", k)
		}
	}
}
