package credential

import (
	"testing"

	"github.com/99designs/keyring"
)

func TestClassify(t *testing.T) {
	tests := map[string]State{
		"":                    Absent,
		"   ":                 Absent,
		PlaceholderKey:        Placeholder,
		PlaceholderKey + "\n": Placeholder,
		"sk-live":             Present,
	}
	for raw, want := range tests {
		if got := Classify(raw); got != want {
			t.Fatalf("Classify(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestResolvePrefersEnvironment(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: KeyringItem, Data: []byte("sk-ring")}})
	cred := Resolve("sk-env", ring)
	if cred.State != Present || cred.Value != "sk-env" || cred.Source != SourceEnv {
		t.Fatalf("Resolve() = %+v", cred)
	}
}

func TestResolveFallsBackToKeyring(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: KeyringItem, Data: []byte("sk-ring")}})
	for _, env := range []string{"", PlaceholderKey} {
		cred := Resolve(env, ring)
		if !cred.Usable() || cred.Value != "sk-ring" || cred.Source != SourceKeyring {
			t.Fatalf("Resolve(%q) = %+v", env, cred)
		}
	}
}

func TestResolveWithoutUsableKey(t *testing.T) {
	if cred := Resolve("", nil); cred.State != Absent || cred.Usable() {
		t.Fatalf("Resolve(empty) = %+v", cred)
	}
	if cred := Resolve(PlaceholderKey, keyring.NewArrayKeyring(nil)); cred.State != Placeholder || cred.Usable() {
		t.Fatalf("Resolve(placeholder) = %+v", cred)
	}
	if cred := Resolve(PlaceholderKey, nil); cred.Value != "" {
		t.Fatalf("placeholder value leaked: %+v", cred)
	}
}

func TestStoreAndClear(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	if err := Store(ring, PlaceholderKey); err == nil {
		t.Fatal("expected error when storing placeholder")
	}
	if err := Store(ring, "sk-stored"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if cred := Resolve("", ring); cred.Value != "sk-stored" {
		t.Fatalf("Resolve() after Store = %+v", cred)
	}
	if err := Clear(ring); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if cred := Resolve("", ring); cred.Usable() {
		t.Fatalf("Resolve() after Clear = %+v", cred)
	}
	if err := Clear(ring); err != nil {
		t.Fatalf("second Clear() error = %v", err)
	}
}

func TestStoreRequiresKeyring(t *testing.T) {
	if err := Store(nil, "sk-x"); err == nil {
		t.Fatal("expected error for nil keyring")
	}
}
