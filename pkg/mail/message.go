package mail

import (
	"encoding/json"
	"fmt"
	netmail "net/mail"
	"strings"
)

// Message is a templated email as callers describe it.
type Message struct {
	To           []string
	Subject      string
	TextTemplate string
	HTMLTemplate string
	Context      map[string]any
	From         string
	Tags         []string
}

// Validate checks the fields every message needs.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("%w: at least one recipient is required", ErrInvalidMessage)
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return fmt.Errorf("%w: empty recipient", ErrInvalidMessage)
		}
	}
	if m.TextTemplate == "" {
		return fmt.Errorf("%w: text template is required", ErrInvalidMessage)
	}
	return nil
}

// Recipients is a list of addresses that also decodes from a single string.
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = Recipients{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("%w: recipients must be a string or a list of strings", ErrInvalidMessage)
	}
	*r = many
	return nil
}

// IsTestAddress reports whether address belongs to a local test domain.
func IsTestAddress(address string) bool {
	if parsed, err := netmail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	address = strings.ToLower(strings.TrimSpace(address))
	return strings.HasSuffix(address, "@local") || strings.HasSuffix(address, ".local")
}

func allTestAddresses(addresses []string) bool {
	if len(addresses) == 0 {
		return false
	}
	for _, a := range addresses {
		if !IsTestAddress(a) {
			return false
		}
	}
	return true
}
