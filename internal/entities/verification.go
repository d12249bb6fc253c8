package entities

import "time"

// VerificationStage identifies one gate of the MRV pipeline.
type VerificationStage string

const (
	StageAI         VerificationStage = "ai"
	StageThirdParty VerificationStage = "third_party"
	StageAdmin      VerificationStage = "admin"
)

// Verification decisions recorded by the third-party and admin stages.
const (
	DecisionApprove          = "approve"
	DecisionReject           = "reject"
	DecisionRequiresRevision = "requires_revision"
)

// AIScoreThreshold is the score at or above which a project may skip the
// third-party field verification and go straight to admin review.
const AIScoreThreshold = 70.0

// VerificationRecord is one stage outcome for one project. A later stage
// cannot be completed while an earlier required stage is incomplete unless
// Override is set (admin skip, always logged).
type VerificationRecord struct {
	ID        int               `db:"id" json:"id"`
	ProjectID string            `db:"project_id" json:"project_id"`
	Stage     VerificationStage `db:"stage" json:"stage"`
	Completed bool              `db:"completed" json:"completed"`
	Score     *float64          `db:"score" json:"score,omitempty"`
	Decision  *string           `db:"decision" json:"decision,omitempty"`
	Actor     string            `db:"actor" json:"actor"`
	Comments  string            `db:"comments" json:"comments"`
	Override  bool              `db:"override" json:"override"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// ThirdPartyReport is a field verification report from an accredited
// organization.
type ThirdPartyReport struct {
	Organization string `json:"organization"`
	Decision     string `json:"decision"` // approve | reject
	Summary      string `json:"summary"`
	ReportRef    string `json:"report_ref"` // content hash of the uploaded report
}
