package game

// Phase transitions are pure (old) -> (new, applied) functions so the store
// can retry them against fresher snapshots. Illegal transitions return the
// state unchanged with applied=false; callers commit the unchanged document,
// which the store treats as a no-op.

func inRound(status GameStatus) bool {
	switch status {
	case StatusRound1, StatusRound2, StatusRound3, StatusRound4:
		return true
	default:
		return false
	}
}

// StartGame moves an idle or ready lobby into round 1.
func StartGame(gs GameState) (GameState, bool) {
	if gs.CurrentStatus != StatusIdle && gs.CurrentStatus != StatusReady {
		return gs, false
	}
	gs.CurrentRound = 1
	gs.CurrentStatus = StatusRound1
	gs.CurrentStep = StepMiniGame
	gs.CompletedSteps = nil
	gs.IsInvestmentLocked = true
	gs.IsInvestmentConfirmed = false
	gs.IsPortfolioLocked = true
	gs.RevealedResults = false
	for i := range gs.Teams {
		if gs.Teams[i].PurchasedInfoCountPerRound == nil {
			gs.Teams[i].PurchasedInfoCountPerRound = map[int]int{}
		}
		gs.Teams[i].PurchasedInfoCountPerRound[1] = 0
	}
	return gs, true
}

// AdvanceStep moves to targetStep at targetIdx. Skipping ahead of the next
// unvisited step is rejected; revisiting an earlier step is allowed and
// recomputes completed steps.
func AdvanceStep(gs GameState, target GameStep, targetIdx int) (GameState, bool) {
	if !inRound(gs.CurrentStatus) {
		return gs, false
	}
	if targetIdx < 0 || targetIdx >= len(StepOrder) || StepOrder[targetIdx] != target {
		return gs, false
	}
	if targetIdx > StepIndex(gs.CurrentStep)+1 {
		return gs, false
	}
	gs.CurrentStep = target
	gs.CompletedSteps = append([]GameStep(nil), StepOrder[:targetIdx]...)
	gs.RevealedResults = false
	if target == StepInvestment {
		gs.IsInvestmentLocked = false
	}
	return gs, true
}

// AdvanceRound leaves the result step for the next round, or finishes the
// game when the last round's results are in.
func AdvanceRound(gs GameState, maxRounds int) (GameState, bool) {
	if !inRound(gs.CurrentStatus) || gs.CurrentStep != StepResult {
		return gs, false
	}
	if gs.CurrentRound >= maxRounds {
		gs.CurrentStatus = StatusFinished
		gs.IsTimerRunning = false
		return gs, true
	}
	next := gs.CurrentRound + 1
	gs.CurrentRound = next
	gs.CurrentStatus = RoundStatus(next)
	gs.CurrentStep = StepMiniGame
	gs.CompletedSteps = nil
	gs.IsInvestmentLocked = true
	gs.IsInvestmentConfirmed = false
	gs.IsPortfolioLocked = true
	gs.RevealedResults = false
	for i := range gs.Teams {
		gs.Teams[i].GrantedInfoCount = 0
		if gs.Teams[i].PurchasedInfoCountPerRound == nil {
			gs.Teams[i].PurchasedInfoCountPerRound = map[int]int{}
		}
		gs.Teams[i].PurchasedInfoCountPerRound[next] = 0
	}
	return gs, true
}
