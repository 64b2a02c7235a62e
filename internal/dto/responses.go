package dto

// SuccessResponse is the envelope of every successful API response
type SuccessResponse struct {
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

// ErrorResponse is the envelope of every failed API response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// UserResponse is the public profile of a user
type UserResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Fullname    string  `json:"fullname"`
	Email       string  `json:"email"`
	Role        string  `json:"role"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	LastLoginAt *string `json:"lastLoginAt"`
}

// UserData wraps a profile as {user}
type UserData struct {
	User UserResponse `json:"user"`
}

// TokenData is the credential pair returned by refresh-token
type TokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"`
}

// LoginData is the credential pair plus profile returned by login
type LoginData struct {
	TokenData
	User UserResponse `json:"user"`
}

// RegisterData is returned by register; tokens are present only when registration signs the user in
type RegisterData struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"accessToken,omitempty"`
	RefreshToken string       `json:"refreshToken,omitempty"`
	TokenType    string       `json:"tokenType,omitempty"`
	ExpiresIn    int          `json:"expiresIn,omitempty"`
}
