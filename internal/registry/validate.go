package registry

import (
	"fmt"

	"oracle-protocol/internal/domain"
)

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > domain.MaxNameLength {
		return fmt.Errorf("%w: %d bytes, max %d", ErrInvalidName, len(name), domain.MaxNameLength)
	}
	return nil
}

func validateCapacity(capacity uint32) error {
	if capacity == 0 || capacity > domain.MaxCapacity {
		return fmt.Errorf("%w: %d not in 1..%d", ErrInvalidCapacity, capacity, domain.MaxCapacity)
	}
	return nil
}

// validateAttributes enforces the per-oracle limits. An empty set is allowed.
func validateAttributes(attrs []domain.Attribute) error {
	if len(attrs) > domain.MaxAttributes {
		return fmt.Errorf("%w: %d entries, max %d", ErrInvalidAttributes, len(attrs), domain.MaxAttributes)
	}
	for i, a := range attrs {
		switch {
		case a.Name == "":
			return fmt.Errorf("%w: entry %d has an empty name", ErrInvalidAttributes, i)
		case len(a.Name) > domain.MaxAttributeNameLength:
			return fmt.Errorf("%w: entry %d name is %d bytes, max %d",
				ErrInvalidAttributes, i, len(a.Name), domain.MaxAttributeNameLength)
		case len(a.Value) > domain.MaxAttributeValueLength:
			return fmt.Errorf("%w: entry %d (%s) value is %d bytes, max %d",
				ErrInvalidAttributes, i, a.Name, len(a.Value), domain.MaxAttributeValueLength)
		}
	}
	return nil
}
