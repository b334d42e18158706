package auth

type LoginPayload struct {
	Email    string `json:"email" mod:"trim" validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
}

type MeResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}
