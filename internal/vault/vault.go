// Package vault is the credential vault (component C2): it stores secrets
// encrypted at rest, hands callers metadata-only projections, and resolves
// {"credentialRef":{"id":...}} references into injected values for
// operations that need them. The plaintext value is never returned from any
// method except Resolve and Inject.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/a2e-systems/a2e-exec/internal/logging"
)

// vaultSalt is fixed per-vault, matching the original Python implementation's
// single-salt PBKDF2 derivation; a unique per-installation salt is supplied
// via the key material itself (VaultKeyMaterial in config), not this
// constant.
var vaultSalt = []byte("a2e_vault_salt_v1")

const (
	pbkdf2Iterations = 100000
	aesKeyLength     = 32
)

// Credential is a stored secret. Ciphertext holds the sealed value;
// callers only ever see the plaintext through Resolve/Inject.
type Credential struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Ciphertext  string            `json:"encryptedValue"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Metadata is the agent-visible, value-free projection of a Credential.
type Metadata struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Description string            `json:"description,omitempty"`
}

// Reference is the {"credentialRef":{"id":...}} shape agents embed in a
// workflow config to point at a stored credential without seeing it.
type Reference struct {
	CredentialRef struct {
		ID string `json:"id"`
	} `json:"credentialRef"`
}

// Vault is the credential store. All exported methods are safe for
// concurrent use.
type Vault struct {
	mu          sync.RWMutex
	credentials map[string]Credential
	aead        cipher.AEAD
	path        string
}

// New builds a Vault whose encryption key is derived from keyMaterial via
// PBKDF2-SHA256. If path is non-empty and the file exists, the vault loads
// its prior contents from disk.
func New(keyMaterial string, path string) (*Vault, error) {
	key := pbkdf2.Key([]byte(keyMaterial), vaultSalt, pbkdf2Iterations, aesKeyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: build cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: build aead: %w", err)
	}

	v := &Vault{
		credentials: make(map[string]Credential),
		aead:        aead,
		path:        path,
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := v.load(); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

type vaultFile struct {
	Credentials map[string]Credential `json:"credentials"`
}

func (v *Vault) load() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return fmt.Errorf("vault: read %s: %w", v.path, err)
	}
	var f vaultFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("vault: parse %s: %w", v.path, err)
	}
	v.mu.Lock()
	v.credentials = f.Credentials
	if v.credentials == nil {
		v.credentials = make(map[string]Credential)
	}
	v.mu.Unlock()
	logging.Component("vault").Info().Int("count", len(f.Credentials)).Msg("loaded vault from disk")
	return nil
}

// save persists the vault to disk. Caller must hold v.mu for reading.
func (v *Vault) save() error {
	if v.path == "" {
		return nil
	}
	f := vaultFile{Credentials: v.credentials}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("vault: marshal: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0600); err != nil {
		return fmt.Errorf("vault: write %s: %w", v.path, err)
	}
	return nil
}

func (v *Vault) seal(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: generate nonce: %w", err)
	}
	ciphertext := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (v *Vault) open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	nonceSize := v.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("vault: ciphertext too short")
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("vault: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Store encrypts and saves a credential, indexed by id. An existing
// credential with the same id is overwritten.
func (v *Vault) Store(id, credType, value string, metadata map[string]string, description string) error {
	ciphertext, err := v.seal(value)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credentials[id] = Credential{
		ID:          id,
		Type:        credType,
		Ciphertext:  ciphertext,
		Metadata:    metadata,
		Description: description,
	}
	return v.save()
}

// Delete removes a credential by id.
func (v *Vault) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.credentials, id)
	return v.save()
}

func toMetadata(c Credential) Metadata {
	return Metadata{ID: c.ID, Type: c.Type, Metadata: c.Metadata, Description: c.Description}
}

// Metadata returns the value-free projection of a single credential.
func (v *Vault) Metadata(id string) (Metadata, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.credentials[id]
	if !ok {
		return Metadata{}, false
	}
	return toMetadata(c), true
}

// List returns value-free projections of every stored credential.
func (v *Vault) List() []Metadata {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Metadata, 0, len(v.credentials))
	for _, c := range v.credentials {
		out = append(out, toMetadata(c))
	}
	return out
}

// Search ranks credentials by keyword overlap against description,
// metadata values, and id, weighted 3/2/1 respectively, descending by
// score then ascending by id. credType, if non-empty, filters results.
func (v *Vault) Search(query, credType string, topK int) []Metadata {
	words := splitWords(query)
	v.mu.RLock()
	defer v.mu.RUnlock()

	type scored struct {
		meta  Metadata
		score int
	}
	var results []scored
	for _, c := range v.credentials {
		if credType != "" && c.Type != credType {
			continue
		}
		score := scoreCredential(c, words)
		if score > 0 {
			results = append(results, scored{meta: toMetadata(c), score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].meta.ID < results[j].meta.ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	out := make([]Metadata, len(results))
	for i, r := range results {
		out[i] = r.meta
	}
	return out
}

// Resolve looks up the referenced credential's plaintext. Only callers
// trusted to see secrets (Inject, the HTTP ApiCall dispatcher) may call
// this.
func (v *Vault) Resolve(ref Reference) (string, bool, error) {
	if ref.CredentialRef.ID == "" {
		return "", false, nil
	}
	v.mu.RLock()
	c, ok := v.credentials[ref.CredentialRef.ID]
	v.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	plaintext, err := v.open(c.Ciphertext)
	if err != nil {
		return "", false, err
	}
	return plaintext, true, nil
}

// Inject walks a generic config tree (map[string]any / []any / scalars) and
// replaces any {"credentialRef":{"id":...}} value with the resolved
// credential, formatted per the credential's type: "bearer-token" becomes
// "Bearer <value>"; all other kinds are substituted raw.
func (v *Vault) Inject(config map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, val := range config {
		injected, err := v.injectValue(val)
		if err != nil {
			return nil, err
		}
		out[k] = injected
	}
	return out, nil
}

func (v *Vault) injectValue(val any) (any, error) {
	switch t := val.(type) {
	case map[string]any:
		if ref, ok := asReference(t); ok {
			resolved, found, err := v.Resolve(ref)
			if err != nil {
				return nil, err
			}
			if !found {
				return val, nil
			}
			v.mu.RLock()
			cred, ok := v.credentials[ref.CredentialRef.ID]
			v.mu.RUnlock()
			if !ok {
				return resolved, nil
			}
			return formatCredential(cred.Type, resolved), nil
		}
		return v.Inject(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			injected, err := v.injectValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = injected
		}
		return out, nil
	default:
		return val, nil
	}
}

func asReference(m map[string]any) (Reference, bool) {
	raw, ok := m["credentialRef"]
	if !ok {
		return Reference{}, false
	}
	refMap, ok := raw.(map[string]any)
	if !ok {
		return Reference{}, false
	}
	id, ok := refMap["id"].(string)
	if !ok || id == "" {
		return Reference{}, false
	}
	var ref Reference
	ref.CredentialRef.ID = id
	return ref, true
}

func formatCredential(credType, value string) string {
	switch credType {
	case "bearer-token":
		return "Bearer " + value
	default:
		return value
	}
}
