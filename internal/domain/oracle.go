package domain

// Oracle limits.
const (
	// MaxAttributes is the largest attribute set an oracle may hold.
	MaxAttributes = 10

	// MaxAttributeNameLength bounds attribute names (bytes).
	MaxAttributeNameLength = 32

	// MaxAttributeValueLength bounds attribute values (bytes).
	MaxAttributeValueLength = 32
)

// Attribute is one named value published by an oracle.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Oracle is a named, attribute-bearing account scoped to a provider.
type Oracle struct {
	Address    Pubkey      // derived from [Provider, Name] under the oracle program
	Provider   Pubkey      // administering provider (non-owning back-reference)
	Name       string      // 1..MaxNameLength bytes, unique per provider
	Attributes []Attribute // ordered; replaced wholesale on update
	Bump       uint8       // derivation nonce
}

// Attribute returns the value of the first attribute with the given name.
func (o *Oracle) Attribute(name string) (string, bool) {
	for _, a := range o.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// CloneAttributes copies an attribute slice. Nil stays nil.
func CloneAttributes(attrs []Attribute) []Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]Attribute, len(attrs))
	copy(out, attrs)
	return out
}
