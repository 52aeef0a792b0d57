package workflow

// Route picks the stage to run after the current one. ok is false when the run
// should end. It reads only the workflow status and the routing signal.
func Route(s *State) (next Stage, ok bool) {
	if s.Status == StatusFailed {
		return "", false
	}

	switch s.NextAction {
	case ActionVerifyDocuments:
		return StageVerifyDocuments, true
	case ActionCreditCheck:
		return StageCreditCheck, true
	case ActionRiskAssessment:
		return StageRiskAssessment, true
	case ActionMakeDecision:
		return StageMakeDecision, true
	case ActionHumanReview:
		return StageHumanReview, true
	case ActionValidateApplication,
		ActionComplete,
		ActionFixApplication,
		ActionUploadDocuments,
		ActionAwaitHumanDecision:
		return "", false
	default:
		return "", false
	}
}
