package entities

import (
	"time"
)

// EcosystemType classifies the habitat a restoration project works on.
type EcosystemType string

const (
	EcosystemMangrove       EcosystemType = "mangrove"
	EcosystemSeagrass       EcosystemType = "seagrass"
	EcosystemSaltMarsh      EcosystemType = "salt_marsh"
	EcosystemCoastalWetland EcosystemType = "coastal_wetland"
	EcosystemCoralReef      EcosystemType = "coral_reef"
	EcosystemMudflat        EcosystemType = "mudflat"
)

// ValidEcosystemType reports whether t is one of the known ecosystem types.
func ValidEcosystemType(t EcosystemType) bool {
	switch t {
	case EcosystemMangrove, EcosystemSeagrass, EcosystemSaltMarsh,
		EcosystemCoastalWetland, EcosystemCoralReef, EcosystemMudflat:
		return true
	}
	return false
}

// ProjectStatus is the closed set of lifecycle states. Status is mutated
// only through LifecycleService transitions.
type ProjectStatus string

const (
	StatusDraft                ProjectStatus = "draft"
	StatusSubmitted            ProjectStatus = "submitted"
	StatusAIVerifying          ProjectStatus = "ai_verifying"
	StatusRequiresThirdParty   ProjectStatus = "requires_third_party"
	StatusAdminReview          ProjectStatus = "admin_review"
	StatusApproved             ProjectStatus = "approved"
	StatusRejected             ProjectStatus = "rejected"
	StatusRequiresRevision     ProjectStatus = "requires_revision"
	StatusBlockchainPending    ProjectStatus = "blockchain_pending"
	StatusBlockchainRegistered ProjectStatus = "blockchain_registered"
	StatusTokenized            ProjectStatus = "tokenized"
	StatusListed               ProjectStatus = "listed"
	StatusSettled              ProjectStatus = "settled"
)

// Terminal reports whether the status accepts no further transitions.
func (s ProjectStatus) Terminal() bool {
	return s == StatusRejected || s == StatusSettled
}

// Project is a coastal restoration project moving through the MRV pipeline.
// Never deleted, only terminal-marked.
type Project struct {
	ID                string        `db:"id" json:"id"`
	Name              string        `db:"name" json:"name"`
	EcosystemType     EcosystemType `db:"ecosystem_type" json:"ecosystem_type"`
	AreaHectares      float64       `db:"area_hectares" json:"area_hectares"`
	Location          string        `db:"location" json:"location"`
	Status            ProjectStatus `db:"status" json:"status"`
	VerificationScore *float64      `db:"verification_score" json:"verification_score,omitempty"`
	EstimatedCredits  float64       `db:"estimated_credits" json:"estimated_credits"`
	IssuedCredits     float64       `db:"issued_credits" json:"issued_credits"`
	OwnerWallet       string        `db:"owner_wallet" json:"owner_wallet"`
	MediaRefs         []string      `db:"media_refs" json:"media_refs"`
	RetryEligible     bool          `db:"retry_eligible" json:"retry_eligible"`
	RescoreFlagged    bool          `db:"rescore_flagged" json:"rescore_flagged"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// AuditEntry records one lifecycle transition.
type AuditEntry struct {
	ID          string        `db:"id" json:"id"`
	ProjectID   string        `db:"project_id" json:"project_id"`
	FromStatus  ProjectStatus `db:"from_status" json:"from_status"`
	ToStatus    ProjectStatus `db:"to_status" json:"to_status"`
	Actor       string        `db:"actor" json:"actor"`
	EvidenceRef string        `db:"evidence_ref" json:"evidence_ref"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
