// Package student holds the student aggregate and its evaluation history.
//
// The package defines:
//
//   - Entities: Student, Evaluation
//   - Enums: Standing, Level, Bimester, AssessmentKind
//   - The standing rules: DeriveStanding and DischargeStanding
//   - The Repository contract implemented in infrastructure/persistence
//
// # Standing
//
// A student's standing is recomputed from the level of every accepted
// evaluation, last write wins across competencies:
//
//	eval, err := student.NewEvaluation(student.NewEvaluationParams{
//	    StudentID:    s.ID,
//	    CompetencyID: "EF05MA03",
//	    Level:        student.LevelNotAchieved,
//	    Bimester:     student.B2,
//	})
//	s.ApplyEvaluation(eval) // s.Standing == StandingNeedsReinforcement
//
// Evaluations are unique per (competency, bimester). Submitting the same slot
// again replaces the earlier result and keeps its ID.
package student
