// Package agents defines the agent entity: identity plus behavior configuration.
package agents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Autonomy levels control how much approval gating applies to an agent.
// Level 1 asks before every action; level 4 never asks.
const (
	AutonomyMin = 1
	AutonomyMax = 4

	DefaultAutonomy = 2
)

// Agent is identity plus behavior config. Identity is immutable; config
// fields are mutable and every save bumps UpdatedAt.
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Goal          string    `json:"goal"`
	Personality   string    `json:"personality"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Temperature   float64   `json:"temperature"`
	Tools         []string  `json:"tools"`
	AutonomyLevel int       `json:"autonomy_level"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the mutable config fields.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if a.AutonomyLevel < AutonomyMin || a.AutonomyLevel > AutonomyMax {
		return fmt.Errorf("autonomy level must be between %d and %d, got %d", AutonomyMin, AutonomyMax, a.AutonomyLevel)
	}
	return nil
}

// GenerateID creates a unique agent identifier.
func GenerateID() string {
	return uuid.New().String()
}
