package game

import "errors"

// Phase 游戏阶段
type Phase string

const (
	PhasePregame  Phase = "pregame"
	PhaseSetup    Phase = "setup"
	PhaseMain     Phase = "main"
	PhaseGameover Phase = "gameover"
)

// ErrTransitionNotAllowed is returned when a phase transition is not allowed.
var ErrTransitionNotAllowed = errors.New("phase transition not allowed")

// phaseTransitions is the allowed transition table. Gameover is terminal.
var phaseTransitions = map[Phase][]Phase{
	PhasePregame:  {PhaseSetup},
	PhaseSetup:    {PhaseMain},
	PhaseMain:     {PhaseGameover},
	PhaseGameover: {},
}

// ChangePhase moves the state to next, rejecting any transition outside the
// table. The caller owns the state; there is no internal locking.
func (s *GameState) ChangePhase(next Phase) error {
	for _, allowed := range phaseTransitions[s.Phase] {
		if allowed == next {
			s.Phase = next
			return nil
		}
	}
	return ErrTransitionNotAllowed
}
