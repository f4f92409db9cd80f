package dto

import "time"

type MeResponse struct {
	UserID        string     `json:"user_id"`
	Email         string     `json:"email"`
	CreditBalance int        `json:"credit_balance"`
	Plan          string     `json:"plan,omitempty"`
	PlanActive    bool       `json:"plan_active"`
	PlanExpiresAt *time.Time `json:"plan_expires_at,omitempty"`
}
