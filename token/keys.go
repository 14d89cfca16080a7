package token

// Credential store key names. KeyIDToken and KeyAccessToken are read
// elsewhere in the application as the bearer credential for business-API
// calls; KeyTokenExpiry is internal to the manager.
const (
	KeyIDToken      = "id_token"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserID       = "user_id"
	KeyUserEmail    = "user_email"
	KeyTokenExpiry  = "token_expiry"
)
