package usecases

import (
	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

// GateDecision is the outcome of evaluating a project's evidence against
// the verification pipeline rules.
type GateDecision struct {
	RequiredStage entities.VerificationStage
	CanAdvance    bool
	NextStatus    entities.ProjectStatus
	Reason        string
}

// NextStage decides which verification stage a project needs next. Pure
// function over the project and its recorded stage outcomes; it never
// mutates anything.
//
// Rules, in order: without an AI score the AI stage is required (it
// auto-completes when an external score arrives). A score below the
// threshold makes third-party field verification mandatory before admin
// review; at or above the threshold the project may go straight to admin
// review. Admin review is the only stage that can produce a terminal
// decision. The gate never demotes: once a stage completed, a changed
// input does not roll the project back — only an admin decision can
// reopen it.
func NextStage(project *entities.Project, records []entities.VerificationRecord) GateDecision {
	var ai, thirdParty, admin *entities.VerificationRecord
	for i := range records {
		record := &records[i]
		if !record.Completed {
			continue
		}
		switch record.Stage {
		case entities.StageAI:
			ai = record
		case entities.StageThirdParty:
			thirdParty = record
		case entities.StageAdmin:
			admin = record
		}
	}

	if admin != nil {
		return GateDecision{
			RequiredStage: entities.StageAdmin,
			CanAdvance:    false,
			NextStatus:    project.Status,
			Reason:        "admin review already decided",
		}
	}

	if ai == nil || ai.Score == nil {
		return GateDecision{
			RequiredStage: entities.StageAI,
			CanAdvance:    false,
			NextStatus:    entities.StatusAIVerifying,
			Reason:        "awaiting automated verification score",
		}
	}

	// Score at the threshold counts as passing the fast path.
	if *ai.Score < entities.AIScoreThreshold && thirdParty == nil {
		if overrideRecorded(records) {
			return GateDecision{
				RequiredStage: entities.StageAdmin,
				CanAdvance:    true,
				NextStatus:    entities.StatusAdminReview,
				Reason:        "third-party verification skipped by admin override",
			}
		}
		return GateDecision{
			RequiredStage: entities.StageThirdParty,
			CanAdvance:    false,
			NextStatus:    entities.StatusRequiresThirdParty,
			Reason:        "score below threshold, field verification required",
		}
	}

	reason := "score meets threshold, direct admin review"
	if thirdParty != nil {
		reason = "field verification recorded, admin review required"
	}

	return GateDecision{
		RequiredStage: entities.StageAdmin,
		CanAdvance:    true,
		NextStatus:    entities.StatusAdminReview,
		Reason:        reason,
	}
}

func overrideRecorded(records []entities.VerificationRecord) bool {
	for i := range records {
		if records[i].Override {
			return true
		}
	}
	return false
}
