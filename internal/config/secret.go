package config

// Secret is a string type that redacts itself when printed, logged,
// or marshaled. The zero value prints as empty so an unset credential
// doesn't read as "configured but hidden".
type Secret string

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString backs %#v formatting, used by debuggers and test failure
// output; always redacted, including the zero value.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// MarshalJSON ensures secrets are redacted when marshaled to JSON.
func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

// MarshalYAML ensures secrets are redacted when marshaled to YAML.
func (s Secret) MarshalYAML() (interface{}, error) {
	return "[REDACTED]", nil
}
