package models

// User is the authenticated agent as returned by the backend
type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AgentID   string `json:"agent_id"`
	Role      string `json:"role"`
	FirmID    int    `json:"firm_id"`
	FullName  string `json:"full_name"`
	CreatedAt string `json:"created_at"`
}

// RegisterRequest is the sign-up payload
type RegisterRequest struct {
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required,min=6"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	FirstName            string `json:"first_name" validate:"required"`
	LastName             string `json:"last_name" validate:"required"`
	AgentID              string `json:"agent_id" validate:"required"`
	Role                 string `json:"role" validate:"required,oneof=agent admin manager"`
	FirmID               int    `json:"firm_id" validate:"required,gt=0"`
}

// Firm is the organisation an agent belongs to
type Firm struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	Industry  string `json:"industry"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// FirmInput holds the writable firm fields
type FirmInput struct {
	Name     string `json:"name,omitempty" validate:"omitempty,max=255"`
	Address  string `json:"address,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Industry string `json:"industry,omitempty"`
}
