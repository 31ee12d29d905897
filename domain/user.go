package domain

import "time"

// User is a minimal subject record. The authorization core only needs an
// identity to bind codes and tokens to; profile data lives elsewhere.
type User struct {
	ID        string    `bson:"_id"        json:"id"`
	Email     string    `bson:"email"      json:"email"`
	Role      string    `bson:"role"       json:"role"`
	Scopes    []string  `bson:"scopes"     json:"scopes"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// defaultScopesByRole maps an admin role to the default scope set granted at
// user creation. The table is consulted exactly once, when the record is
// created; the resulting scopes are stored on the user so later edits to the
// table never change existing records.
var defaultScopesByRole = map[string][]string{
	"admin":     {"openid", "fhirUser", "user/*.read", "user/*.write"},
	"clinician": {"openid", "fhirUser", "user/*.read", "launch/patient"},
	"patient":   {"openid", "fhirUser", "patient/*.read", "launch/patient"},
	"auditor":   {"openid", "user/*.read"},
}

// DefaultScopesForRole returns the default scope set for a role. Unknown roles
// get only openid.
func DefaultScopesForRole(role string) []string {
	if scopes, ok := defaultScopesByRole[role]; ok {
		out := make([]string, len(scopes))
		copy(out, scopes)
		return out
	}
	return []string{"openid"}
}
