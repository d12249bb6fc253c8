package usecases

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"

	"github.com/bluecarbon/mrv-registry/backend/internal/entities"
)

func aiRecord(score float64) entities.VerificationRecord {
	return entities.VerificationRecord{
		Stage:     entities.StageAI,
		Completed: true,
		Score:     pointy.Float64(score),
	}
}

func TestNextStageRequiresAIScoreFirst(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusAIVerifying}

	decision := NextStage(project, nil)

	require.Equal(t, entities.StageAI, decision.RequiredStage)
	require.False(t, decision.CanAdvance)
	require.Equal(t, entities.StatusAIVerifying, decision.NextStatus)
}

func TestNextStageFastPathAtOrAboveThreshold(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusAIVerifying}

	for _, score := range []float64{entities.AIScoreThreshold, 85, 100} {
		decision := NextStage(project, []entities.VerificationRecord{aiRecord(score)})

		require.Equal(t, entities.StageAdmin, decision.RequiredStage, "score %.0f", score)
		require.True(t, decision.CanAdvance, "score %.0f", score)
		require.Equal(t, entities.StatusAdminReview, decision.NextStatus, "score %.0f", score)
	}
}

func TestNextStageLowScoreRequiresThirdParty(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusAIVerifying}

	decision := NextStage(project, []entities.VerificationRecord{aiRecord(69.9)})

	require.Equal(t, entities.StageThirdParty, decision.RequiredStage)
	require.False(t, decision.CanAdvance)
	require.Equal(t, entities.StatusRequiresThirdParty, decision.NextStatus)
}

func TestNextStageThirdPartyRecordedGoesToAdmin(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusRequiresThirdParty}
	records := []entities.VerificationRecord{
		aiRecord(40),
		{Stage: entities.StageThirdParty, Completed: true, Decision: pointy.String(entities.DecisionApprove)},
	}

	decision := NextStage(project, records)

	require.Equal(t, entities.StageAdmin, decision.RequiredStage)
	require.True(t, decision.CanAdvance)
	require.Equal(t, entities.StatusAdminReview, decision.NextStatus)
}

func TestNextStageOverrideSkipsThirdParty(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusRequiresThirdParty}
	records := []entities.VerificationRecord{
		aiRecord(40),
		{Stage: entities.StageAdmin, Completed: false, Override: true},
	}

	decision := NextStage(project, records)

	require.Equal(t, entities.StageAdmin, decision.RequiredStage)
	require.True(t, decision.CanAdvance)
}

func TestNextStageAdminDecisionIsTerminal(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusApproved}
	records := []entities.VerificationRecord{
		aiRecord(90),
		{Stage: entities.StageAdmin, Completed: true, Decision: pointy.String(entities.DecisionApprove)},
	}

	decision := NextStage(project, records)

	require.False(t, decision.CanAdvance)
	require.Equal(t, entities.StatusApproved, decision.NextStatus, "a decided project is never demoted")
}

func TestNextStageIgnoresIncompleteRecords(t *testing.T) {
	project := &entities.Project{ID: "p1", Status: entities.StatusAIVerifying}
	records := []entities.VerificationRecord{
		{Stage: entities.StageAI, Completed: false, Score: pointy.Float64(95)},
	}

	decision := NextStage(project, records)

	require.Equal(t, entities.StageAI, decision.RequiredStage)
}
