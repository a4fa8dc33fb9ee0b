package bank

// DefaultLearningRate is the EMA smoothing factor applied per outcome.
const DefaultLearningRate = 0.2

// neutralPrior anchors the confidence delta for a domain's first
// observation.
const neutralPrior = 0.5

// rewardSignal maps an outcome and reward to the evidence value blended
// into the domain confidence: the reward itself on success, its
// complement on failure. Unknown outcomes contribute the reward as-is.
func rewardSignal(outcome Outcome, reward float64) float64 {
	if reward <= 0 {
		reward = NeutralReward
	}
	if reward > 1 {
		reward = 1
	}
	if outcome == OutcomeFailure {
		return 1 - reward
	}
	return reward
}

// nextConfidence computes the updated domain confidence.
//
// With a prior c the update is the EMA c' = c + alpha*(signal - c).
// Without a prior the first observation initializes confidence directly
// and the delta is measured against the neutral 0.5.
//
// Failure updates are clamped at the prior so the delta is never
// positive: a failed task must not raise confidence even when its
// complemented reward lands above the current estimate.
func nextConfidence(prior *float64, outcome Outcome, reward, alpha float64) (next, delta float64) {
	signal := rewardSignal(outcome, reward)

	base := neutralPrior
	if prior != nil {
		base = *prior
		next = base + alpha*(signal-base)
	} else {
		next = signal
	}

	if outcome == OutcomeFailure && next > base {
		next = base
	}
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}
	return next, next - base
}
