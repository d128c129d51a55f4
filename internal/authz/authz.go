// Package authz is the identity & authorization component (C3): agents
// authenticate with a bcrypt-hashed API key, exchange it for a short-lived
// JWT, and every resource access is checked against the agent's allow-lists
// for APIs, credentials, and operation kinds. An empty allow-list means the
// agent may use every resource of that class.
package authz

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/a2e-systems/a2e-exec/internal/logging"
)

const (
	apiKeyLength = 32
	bcryptCost   = 12
)

// Agent is a registered service principal.
type Agent struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	APIKeyHash         string          `json:"apiKeyHash"`
	AllowedAPIs        []string        `json:"allowedApis"`
	AllowedCredentials []string        `json:"allowedCredentials"`
	AllowedOperations  []string        `json:"allowedOperations"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	LastUsed           *time.Time      `json:"lastUsed,omitempty"`
}

// Permissions is the agent-visible projection of an agent's allow-lists.
type Permissions struct {
	AllowedAPIs        []string `json:"allowedApis"`
	AllowedCredentials []string `json:"allowedCredentials"`
	AllowedOperations  []string `json:"allowedOperations"`
}

// Claims is the JWT payload identifying the calling agent.
type Claims struct {
	AgentID string `json:"agentId"`
	jwt.RegisteredClaims
}

// Store is the identity & authorization store. Safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	agents    map[string]*Agent
	path      string
	secretKey string
	tokenTTL  time.Duration
}

// New builds a Store. If path is non-empty and exists, agent registrations
// are loaded from it.
func New(secretKey, path string, tokenTTL time.Duration) (*Store, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("authz: secret key must not be empty")
	}
	s := &Store{
		agents:    make(map[string]*Agent),
		path:      path,
		secretKey: secretKey,
		tokenTTL:  tokenTTL,
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := s.load(); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

type agentFile struct {
	Agents map[string]*Agent `json:"agents"`
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("authz: read %s: %w", s.path, err)
	}
	var f agentFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("authz: parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.agents = f.Agents
	if s.agents == nil {
		s.agents = make(map[string]*Agent)
	}
	s.mu.Unlock()
	logging.Component("authz").Info().Int("count", len(f.Agents)).Msg("loaded agents from disk")
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	f := agentFile{Agents: s.agents}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("authz: marshal: %w", err)
	}
	return os.WriteFile(s.path, data, 0600)
}

func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authz: generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// RegisterAgent creates a new agent with the given allow-lists and returns
// the plaintext API key. The key is shown once; only its bcrypt hash is
// persisted.
func (s *Store) RegisterAgent(id, name string, allowedAPIs, allowedCredentials, allowedOperations []string, metadata map[string]any) (string, error) {
	key, err := generateAPIKey()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("authz: hash api key: %w", err)
	}

	agent := &Agent{
		ID:                 id,
		Name:               name,
		APIKeyHash:         string(hash),
		AllowedAPIs:        allowedAPIs,
		AllowedCredentials: allowedCredentials,
		AllowedOperations:  allowedOperations,
		Metadata:           metadata,
		CreatedAt:          time.Now(),
	}

	s.mu.Lock()
	s.agents[id] = agent
	err = s.save()
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return key, nil
}

// Authenticate checks an API key against every registered agent's bcrypt
// hash and returns the matching agent id.
func (s *Store) Authenticate(apiKey string) (string, bool) {
	s.mu.RLock()
	var match *Agent
	for _, agent := range s.agents {
		if bcrypt.CompareHashAndPassword([]byte(agent.APIKeyHash), []byte(apiKey)) == nil {
			match = agent
			break
		}
	}
	s.mu.RUnlock()
	if match == nil {
		return "", false
	}

	now := time.Now()
	s.mu.Lock()
	match.LastUsed = &now
	_ = s.save()
	s.mu.Unlock()
	return match.ID, true
}

// IssueToken mints a short-lived JWT for an already-authenticated agent.
func (s *Store) IssueToken(agentID string) (string, error) {
	s.mu.RLock()
	_, ok := s.agents[agentID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("authz: agent %s not registered", agentID)
	}

	now := time.Now()
	claims := Claims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "a2e-exec",
			Subject:   agentID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

// VerifyToken validates a JWT and returns the agent id it identifies.
func (s *Store) VerifyToken(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authz: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return "", fmt.Errorf("authz: invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("authz: token not valid")
	}
	s.mu.RLock()
	_, ok := s.agents[claims.AgentID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("authz: agent %s no longer registered", claims.AgentID)
	}
	return claims.AgentID, nil
}

// Permissions returns the agent-visible projection of an agent's
// allow-lists. The projection only ever reads fields already stored, so
// repeated calls return the same lists.
func (s *Store) Permissions(agentID string) (Permissions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return Permissions{}, false
	}
	return Permissions{
		AllowedAPIs:        agent.AllowedAPIs,
		AllowedCredentials: agent.AllowedCredentials,
		AllowedOperations:  agent.AllowedOperations,
	}, true
}

func allowed(allowList []string, candidate string) bool {
	if len(allowList) == 0 {
		return true
	}
	for _, a := range allowList {
		if a == candidate {
			return true
		}
	}
	return false
}

// IsAPIAllowed reports whether agentID may use apiID. Unknown agents are
// denied everything.
func (s *Store) IsAPIAllowed(agentID, apiID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return false
	}
	return allowed(agent.AllowedAPIs, apiID)
}

// IsCredentialAllowed reports whether agentID may reference credentialID.
func (s *Store) IsCredentialAllowed(agentID, credentialID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return false
	}
	return allowed(agent.AllowedCredentials, credentialID)
}

// IsOperationAllowed reports whether agentID may use the named operation
// kind.
func (s *Store) IsOperationAllowed(agentID, operationKind string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return false
	}
	return allowed(agent.AllowedOperations, operationKind)
}

// Exists reports whether an agent id is registered.
func (s *Store) Exists(agentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.agents[agentID]
	return ok
}
