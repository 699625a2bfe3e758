package queues

import (
	"fmt"
	"strings"
)

type Recipient struct {
	Role    string
	Address string
}

// RecipientDirectory maps workflow roles to notification addresses.
type RecipientDirectory struct {
	addresses map[string][]string
}

func NewRecipientDirectory(addresses map[string][]string) *RecipientDirectory {
	directory := &RecipientDirectory{addresses: make(map[string][]string, len(addresses))}

	for role, list := range addresses {
		directory.addresses[role] = append([]string(nil), list...)
	}

	return directory
}

// ParseRecipients builds a directory from ROLE=address entries. A role may
// appear more than once.
func ParseRecipients(entries []string) (*RecipientDirectory, error) {
	addresses := map[string][]string{}

	for _, entry := range entries {
		role, address, ok := strings.Cut(entry, "=")
		role = strings.TrimSpace(role)
		address = strings.TrimSpace(address)

		if !ok || role == "" || address == "" {
			return nil, fmt.Errorf("invalid recipient %q, expected ROLE=address", entry)
		}

		addresses[role] = append(addresses[role], address)
	}

	return NewRecipientDirectory(addresses), nil
}

// Resolve expands roles into recipients. A role without an address yields a
// single recipient with an empty address; the notifier decides what that means.
func (d *RecipientDirectory) Resolve(roles []string) []Recipient {
	recipients := make([]Recipient, 0, len(roles))

	for _, role := range roles {
		addresses := d.addresses[role]
		if len(addresses) == 0 {
			recipients = append(recipients, Recipient{Role: role})

			continue
		}

		for _, address := range addresses {
			recipients = append(recipients, Recipient{Role: role, Address: address})
		}
	}

	return recipients
}
