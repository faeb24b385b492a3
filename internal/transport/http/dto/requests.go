package dto

import "strings"

// -------- Reconciliation --------

// SyncRequest carries the registration choice made on the sign-up form.
// Both fields are optional: returning users send an empty body.
type SyncRequest struct {
	Role      string `json:"role,omitempty" validate:"omitempty,registration_role"`
	Specialty string `json:"specialty,omitempty" validate:"omitempty,max=120"`
}

func (r *SyncRequest) Validate() error {
	r.Role = strings.TrimSpace(r.Role)
	r.Specialty = strings.TrimSpace(r.Specialty)
	return validateStruct(r)
}

type SignInCompleteRequest struct {
	SignInID  string `json:"sign_in_id" validate:"required"`
	Role      string `json:"role,omitempty" validate:"omitempty,registration_role"`
	Specialty string `json:"specialty,omitempty" validate:"omitempty,max=120"`
}

func (r *SignInCompleteRequest) Validate() error {
	r.SignInID = strings.TrimSpace(r.SignInID)
	r.Role = strings.TrimSpace(r.Role)
	r.Specialty = strings.TrimSpace(r.Specialty)
	return validateStruct(r)
}

type VerifyRequest struct {
	VerificationToken string `json:"verification_token" validate:"required"`
	Code              string `json:"code" validate:"required,max=32"`
}

func (r *VerifyRequest) Validate() error {
	r.VerificationToken = strings.TrimSpace(r.VerificationToken)
	r.Code = strings.TrimSpace(r.Code)
	return validateStruct(r)
}

// -------- Admin --------

type SetRoleRequest struct {
	Role      string `json:"role" validate:"required,role"`
	Specialty string `json:"specialty,omitempty" validate:"omitempty,max=120"`
}

func (r *SetRoleRequest) Validate() error {
	r.Role = strings.TrimSpace(r.Role)
	r.Specialty = strings.TrimSpace(r.Specialty)
	return validateStruct(r)
}
