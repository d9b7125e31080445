package entity

type Intent string

const (
	IntentGreeting      Intent = "greeting"
	IntentLeadGen       Intent = "lead_gen"
	IntentPricePushback Intent = "price_pushback"
	IntentClose         Intent = "close"
	IntentFollowUp      Intent = "follow_up"
	IntentInfoGathering Intent = "info_gathering"
	IntentFrustration   Intent = "frustration"
	IntentDefault       Intent = "default"
)

// NextStage maps a detected intent onto the sales funnel. ok is false when
// the intent leaves the stage unchanged.
func NextStage(intent Intent, current Stage) (Stage, bool) {
	switch intent {
	case IntentClose:
		return StageReadyToClose, true
	case IntentPricePushback:
		return StageHesitant, true
	case IntentFrustration:
		return StageNeedsSupport, true
	case IntentLeadGen:
		if current == StageNew || current == "" {
			return StageInterested, true
		}
	case IntentInfoGathering:
		if current == StageNew || current == StageInterested || current == "" {
			return StageCollectingInfo, true
		}
	}
	return current, false
}
