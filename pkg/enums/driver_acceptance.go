package enums

import "fmt"

// DriverAcceptance tracks the driver's response to an assignment, separate
// from the assignment itself.
type DriverAcceptance string

const (
	DriverAcceptancePending  DriverAcceptance = "pending"
	DriverAcceptanceAccepted DriverAcceptance = "accepted"
	DriverAcceptanceRejected DriverAcceptance = "rejected"
)

var validDriverAcceptances = []DriverAcceptance{
	DriverAcceptancePending,
	DriverAcceptanceAccepted,
	DriverAcceptanceRejected,
}

// IsValid reports whether the value matches the canonical acceptance enum.
func (a DriverAcceptance) IsValid() bool {
	for _, candidate := range validDriverAcceptances {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseDriverAcceptance converts raw input into DriverAcceptance.
func ParseDriverAcceptance(value string) (DriverAcceptance, error) {
	for _, candidate := range validDriverAcceptances {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid driver acceptance %q", value)
}
