package auth

// RegisterRequest represents the expected JSON body for account registration.
type RegisterRequest struct {
	Firstname string `json:"firstname" example:"John"`
	Lastname  string `json:"lastname" example:"Doe"`
	Email     string `json:"email" example:"john.doe@example.com"` // Must be unique.
	Password  string `json:"password" example:"Str0ngP@ss!"`
}

// LoginRequest represents the expected JSON body for authentication.
type LoginRequest struct {
	Email    string `json:"email" example:"john.doe@example.com"`
	Password string `json:"password" example:"Str0ngP@ss!"`
}

// AuthenticationResponse carries the issued bearer credential. No session
// state is retained server-side; the token is the full proof of
// authentication.
type AuthenticationResponse struct {
	Token string `json:"token" example:"eyJhbGciOiJI..."`
}
