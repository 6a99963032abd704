// ABOUTME: MCP token store mapping pre-shared tokens to tool capabilities.
// ABOUTME: Populated from auth.tokens in the config and consulted before JWT verification.

package mcp

import "sync"

// TokenStore manages pre-shared MCP access tokens and their capabilities.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string][]string // token -> capabilities
}

// NewTokenStore creates a new token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string][]string),
	}
}

// Add registers token with the given capabilities, replacing any previous entry.
// An empty capability list is stored as non-nil so the token still resolves.
func (s *TokenStore) Add(token string, capabilities []string) {
	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	s.mu.Lock()
	s.tokens[token] = caps
	s.mu.Unlock()
}

// GetCapabilities returns the capabilities for a token, or nil if not found.
func (s *TokenStore) GetCapabilities(token string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	caps, ok := s.tokens[token]
	if !ok {
		return nil
	}

	// Return a copy to prevent modification
	result := make([]string, len(caps))
	copy(result, caps)
	return result
}

// TokenCount returns the number of active tokens (for monitoring).
func (s *TokenStore) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
