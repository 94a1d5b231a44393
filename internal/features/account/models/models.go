package models

// Role is the account role assigned at creation time. There is no
// promotion or demotion operation; the value is immutable afterwards.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Account is the internal identity record for an onboarded external user.
type Account struct {
	ID          int64  `json:"id"`
	ExternalID  int64  `json:"external_id"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"display_name"`
	TribeID     int64  `json:"tribe_id"`
	Role        Role   `json:"role"`
	WalletToken string `json:"wallet_token"`
	Locale      string `json:"locale"`
	Bio         string `json:"bio,omitempty"`
	AvatarPath  string `json:"avatar_path,omitempty"`
}

// Tribe is an affiliation group with its own wallet.
type Tribe struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	WalletToken string `json:"wallet_token"`
}

// Wallet is a balance holder keyed by its token.
type Wallet struct {
	Token   string  `json:"token"`
	Balance float64 `json:"balance"`
}
