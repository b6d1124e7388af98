package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/ehr-terminal/internal/store"
)

const serviceName = "ehr-terminal"

// ErrNotFound is returned when no credential exists under a key.
var ErrNotFound = errors.New("credential not found")

// Keyring stores secrets in the system keyring.
type Keyring struct {
	ring keyring.Keyring
}

// Open returns a Keyring backed by the first available system backend.
// The encrypted file backend under fileDir is the last resort.
func Open(fileDir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("ehr-terminal-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// NewKeyring wraps an existing keyring, e.g. keyring.NewArrayKeyring.
func NewKeyring(ring keyring.Keyring) *Keyring {
	return &Keyring{ring: ring}
}

// Get retrieves a credential value by key.
func (k *Keyring) Get(key string) (string, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential value by key.
func (k *Keyring) Set(key string, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key. Deleting a missing key is not an error.
func (k *Keyring) Delete(key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// SplitDurable keeps the bearer token in the keyring and every other
// slot in the wrapped store, while still writing and clearing the
// token together with the user slot.
type SplitDurable struct {
	secrets *Keyring
	rest    store.Durable
}

var _ store.Durable = (*SplitDurable)(nil)

// NewSplitDurable routes store.SlotToken to secrets and the rest to rest.
func NewSplitDurable(secrets *Keyring, rest store.Durable) *SplitDurable {
	return &SplitDurable{secrets: secrets, rest: rest}
}

// GetSlot reads a slot from whichever backend owns it.
func (d *SplitDurable) GetSlot(ctx context.Context, key string) (string, bool, error) {
	if key != store.SlotToken {
		return d.rest.GetSlot(ctx, key)
	}
	v, err := d.secrets.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// PutSlots writes the token first and removes it again if the store
// write fails, so a token never outlives a failed session write.
func (d *SplitDurable) PutSlots(ctx context.Context, slots map[string]string) error {
	rest := make(map[string]string, len(slots))
	token, hasToken := "", false
	for k, v := range slots {
		if k == store.SlotToken {
			token, hasToken = v, true
			continue
		}
		rest[k] = v
	}

	if hasToken {
		if err := d.secrets.Set(store.SlotToken, token); err != nil {
			return err
		}
	}
	if err := d.rest.PutSlots(ctx, rest); err != nil {
		if hasToken {
			if delErr := d.secrets.Delete(store.SlotToken); delErr != nil {
				return errors.Join(err, delErr)
			}
		}
		return err
	}
	return nil
}

// DeleteSlots clears the store slots first, then the token.
func (d *SplitDurable) DeleteSlots(ctx context.Context, keys ...string) error {
	rest := make([]string, 0, len(keys))
	hasToken := false
	for _, k := range keys {
		if k == store.SlotToken {
			hasToken = true
			continue
		}
		rest = append(rest, k)
	}

	err := d.rest.DeleteSlots(ctx, rest...)
	if hasToken {
		err = errors.Join(err, d.secrets.Delete(store.SlotToken))
	}
	return err
}
