package entities

// StageStatus is the public progress view of one verification stage.
type StageStatus struct {
	Completed bool     `json:"completed"`
	Score     *float64 `json:"score,omitempty"`
	Decision  *string  `json:"decision,omitempty"`
	Actor     string   `json:"actor,omitempty"`
}

// RegistrationStatusView summarizes the on-chain registration attempt.
type RegistrationStatusView struct {
	Attempted bool               `json:"attempted"`
	Status    RegistrationStatus `json:"status,omitempty"`
	TxHash    string             `json:"tx_hash,omitempty"`
}

// VerificationStatusView is the aggregated pipeline progress for one
// project.
type VerificationStatusView struct {
	ProjectID              string                 `json:"project_id"`
	Status                 ProjectStatus          `json:"status"`
	AIVerification         StageStatus            `json:"ai_verification"`
	ThirdPartyVerification StageStatus            `json:"third_party_verification"`
	AdminReview            StageStatus            `json:"admin_review"`
	BlockchainRegistration RegistrationStatusView `json:"blockchain_registration"`
}
