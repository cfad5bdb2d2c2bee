package student

// DeriveStanding maps an achievement level to the aggregate standing.
// The result overwrites the student's standing regardless of competency.
func DeriveStanding(level Level) Standing {
	switch level {
	case LevelNotAchieved:
		return StandingNeedsReinforcement
	case LevelDeveloping:
		return StandingDeveloping
	case LevelAchieved, LevelExceeded:
		return StandingAdequate
	default:
		// Unknown levels never get past NewEvaluation; treat them as partial.
		return StandingDeveloping
	}
}

// DischargeStanding is the exit mapping used when a student leaves a
// reinforcement group. Anything short of achieved maps to developing, never
// to needs-reinforcement.
func DischargeStanding(level Level) Standing {
	switch level {
	case LevelAchieved, LevelExceeded:
		return StandingAdequate
	default:
		return StandingDeveloping
	}
}
