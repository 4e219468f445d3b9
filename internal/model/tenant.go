// Package model holds the persisted entities of spec §3. These are plain
// data structs; invariants that must hold across an entity's lifetime are
// enforced by the aggregate/command layer (internal/taskapp,
// internal/authapp), not by the struct itself.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionPlan enumerates Tenant.subscription_plan.
type SubscriptionPlan string

const (
	PlanBasic        SubscriptionPlan = "BASIC"
	PlanProfessional SubscriptionPlan = "PROFESSIONAL"
	PlanEnterprise   SubscriptionPlan = "ENTERPRISE"
)

// ReservedSubdomains is the reserved set from spec §3 — a Tenant's
// subdomain must never collide with one of these.
var ReservedSubdomains = map[string]bool{
	"www":   true,
	"api":   true,
	"app":   true,
	"admin": true,
}

// Tenant is an isolated organizational namespace (spec §3).
type Tenant struct {
	ID               uuid.UUID
	Name             string
	Subdomain        string
	SubscriptionPlan SubscriptionPlan
	MaxUsers         int
	IsActive         bool
	Settings         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
