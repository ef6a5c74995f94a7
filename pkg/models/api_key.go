package models

// Scopes granted to API keys.
const (
	ScopeRead  = "read"
	ScopeAdmin = "admin"
)

// APIKey is a configured credential. Only the bcrypt hash of the raw key is
// held; raw keys never leave the client.
type APIKey struct {
	Name    string   `json:"name"`
	KeyHash string   `json:"-"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the key grants scope.
func (k APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
