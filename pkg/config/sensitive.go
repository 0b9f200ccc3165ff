package config

import "encoding/json"

// redactedPlaceholder replaces secret values in any rendered output.
const redactedPlaceholder = "[REDACTED]"

// SensitiveString holds a secret. It prints and marshals as a redacted
// placeholder; the real value is only reachable through Value(). Empty
// values stay empty so omitempty and presence checks behave.
type SensitiveString string

// String implements fmt.Stringer with redaction.
func (s SensitiveString) String() string {
	if s == "" {
		return ""
	}
	return redactedPlaceholder
}

// Value returns the actual secret.
func (s SensitiveString) Value() string {
	return string(s)
}

// IsSet reports whether a secret is present without exposing it.
func (s SensitiveString) IsSet() bool {
	return s != ""
}

// MarshalJSON always emits the redacted form.
func (s SensitiveString) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a plain string.
func (s *SensitiveString) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = SensitiveString(raw)
	return nil
}
