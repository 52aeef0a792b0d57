package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		action   Action
		status   Status
		want     Stage
		wantNext bool
	}{
		{ActionVerifyDocuments, StatusInProgress, StageVerifyDocuments, true},
		{ActionCreditCheck, StatusInProgress, StageCreditCheck, true},
		{ActionRiskAssessment, StatusInProgress, StageRiskAssessment, true},
		{ActionMakeDecision, StatusInProgress, StageMakeDecision, true},
		{ActionHumanReview, StatusRequiresHuman, StageHumanReview, true},
		{ActionComplete, StatusCompleted, "", false},
		{ActionFixApplication, StatusFailed, "", false},
		{ActionUploadDocuments, StatusRequiresHuman, "", false},
		{ActionAwaitHumanDecision, StatusRequiresHuman, "", false},
		{ActionValidateApplication, StatusPending, "", false},
		{Action("archive"), StatusInProgress, "", false},
		// a failed workflow ends whatever the routing signal says
		{ActionCreditCheck, StatusFailed, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action)+"/"+string(tt.status), func(t *testing.T) {
			s := &State{Progress: Progress{NextAction: tt.action, Status: tt.status}}

			got, ok := Route(s)
			assert.Equal(t, tt.wantNext, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
