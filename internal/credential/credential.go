// Package credential resolves the completion-service API key once at startup.
//
// The result is a typed tri-state (Absent, Placeholder, Present) that callers
// thread through instead of re-checking raw strings.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

// PlaceholderKey is the sample value shipped in .env templates.
const PlaceholderKey = "your-openai-api-key-here"

// ServiceName namespaces entries in the OS keyring.
const ServiceName = "crmassist"

// KeyringItem is the keyring entry that holds the API key.
const KeyringItem = "llm_api_key"

type State int

const (
	Absent State = iota
	Placeholder
	Present
)

func (s State) String() string {
	switch s {
	case Placeholder:
		return "placeholder"
	case Present:
		return "present"
	default:
		return "absent"
	}
}

type Source string

const (
	SourceNone    Source = ""
	SourceEnv     Source = "env"
	SourceKeyring Source = "keyring"
)

type Credential struct {
	State  State
	Value  string
	Source Source
}

// Usable reports whether live completions may be attempted.
func (c Credential) Usable() bool {
	return c.State == Present
}

// Classify maps a raw value to its state.
func Classify(raw string) State {
	value := strings.TrimSpace(raw)
	switch {
	case value == "":
		return Absent
	case value == PlaceholderKey:
		return Placeholder
	default:
		return Present
	}
}

// Resolve prefers the environment value and falls back to the keyring when the
// environment holds nothing usable. ring may be nil.
func Resolve(envValue string, ring keyring.Keyring) Credential {
	state := Classify(envValue)
	if state == Present {
		return Credential{State: Present, Value: strings.TrimSpace(envValue), Source: SourceEnv}
	}
	if ring != nil {
		item, err := ring.Get(KeyringItem)
		if err == nil && Classify(string(item.Data)) == Present {
			return Credential{State: Present, Value: strings.TrimSpace(string(item.Data)), Source: SourceKeyring}
		}
	}
	if state == Placeholder {
		return Credential{State: Placeholder, Source: SourceEnv}
	}
	return Credential{State: Absent}
}

// OpenKeyring opens the OS credential store for this service.
func OpenKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName:              ServiceName,
		KeychainTrustApplication: true,
		LibSecretCollectionName:  ServiceName,
		PassPrefix:               ServiceName,
		WinCredPrefix:            ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// Store saves the API key in ring.
func Store(ring keyring.Keyring, apiKey string) error {
	if ring == nil {
		return errors.New("keyring is not available")
	}
	if Classify(apiKey) != Present {
		return errors.New("api key is empty or the placeholder value")
	}
	if err := ring.Set(keyring.Item{
		Key:   KeyringItem,
		Data:  []byte(strings.TrimSpace(apiKey)),
		Label: "CRM assistant LLM API key",
	}); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

// Clear removes the API key from ring. A missing entry is not an error.
func Clear(ring keyring.Keyring) error {
	if ring == nil {
		return errors.New("keyring is not available")
	}
	if err := ring.Remove(KeyringItem); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove api key: %w", err)
	}
	return nil
}
