package dto

import "time"

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type GenerationResponse struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	URL         string    `json:"url"`
	CreditsLeft int       `json:"credits_left"`
	CreatedAt   time.Time `json:"created_at"`
}

type GenerationsResponse struct {
	Generations []GenerationResponse `json:"generations"`
}
