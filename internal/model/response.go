package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type AuthMeResponse struct {
	ID          string  `json:"id"`
	FirebaseUID string  `json:"firebase_uid"`
	Username    *string `json:"username"`
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
	Gender      *Gender `json:"gender"`
	DOB         *string `json:"dob"`
	SessionID   string  `json:"session_id"`
}

type ProvidersResponse struct {
	Providers []ProviderType `json:"providers"`
}
