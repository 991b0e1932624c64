package settings

const (
	SetupSection   = "setup"
	InitializedKey = "is_initialized"
)

// IsInitialized reports whether the setup flow has completed.
//
// The flag lives in the "setup" section; documents written before that
// section existed keep it at the top level. Anything other than a JSON
// true counts as not initialized.
func IsInitialized(doc *Document) bool {
	if raw, ok := doc.Get(SetupSection); ok {
		if section, ok := raw.(map[string]any); ok {
			if v, ok := section[InitializedKey]; ok {
				b, isBool := v.(bool)
				return isBool && b
			}
		}
	}

	v, ok := doc.Get(InitializedKey)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	return isBool && b
}

// MarkInitialized sets setup.is_initialized to value, keeping the other
// fields of the setup section.
func MarkInitialized(doc *Document, value bool) {
	section := map[string]any{}
	if raw, ok := doc.Get(SetupSection); ok {
		if existing, ok := raw.(map[string]any); ok {
			for k, v := range existing {
				section[k] = v
			}
		}
	}
	section[InitializedKey] = value
	doc.Set(SetupSection, section)
}
