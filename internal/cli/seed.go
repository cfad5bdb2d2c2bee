package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edutracker/edutracker/internal/app"
	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/infrastructure/scheduler/jobs"
)

// Fixture is the seed file layout. Sections are applied in field order, so
// later sections may reference ids declared earlier.
type Fixture struct {
	Classes []struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		Grade     string `yaml:"grade"`
		Shift     string `yaml:"shift"`
		TeacherID string `yaml:"teacher_id"`
	} `yaml:"classes"`

	Competencies []struct {
		ID          string `yaml:"id"`
		Code        string `yaml:"code"`
		Name        string `yaml:"name"`
		Subject     string `yaml:"subject"`
		Description string `yaml:"description"`
		Grade       string `yaml:"grade"`
	} `yaml:"competencies"`

	Students []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Age     int    `yaml:"age"`
		Grade   string `yaml:"grade"`
		ClassID string `yaml:"class_id"`
	} `yaml:"students"`

	Evaluations []struct {
		StudentID    string   `yaml:"student_id"`
		CompetencyID string   `yaml:"competency_id"`
		Level        string   `yaml:"level"`
		Bimester     string   `yaml:"bimester"`
		Kind         string   `yaml:"kind"`
		Score        *float64 `yaml:"score"`
		MaxScore     *float64 `yaml:"max_score"`
		Feedback     string   `yaml:"feedback"`
		Date         string   `yaml:"date"`
	} `yaml:"evaluations"`

	Groups []struct {
		Name            string   `yaml:"name"`
		Subject         string   `yaml:"subject"`
		CompetencyIDs   []string `yaml:"competency_ids"`
		MemberIDs       []string `yaml:"member_ids"`
		Schedule        string   `yaml:"schedule"`
		StartDate       string   `yaml:"start_date"`
		ExpectedEndDate string   `yaml:"expected_end_date"`
	} `yaml:"groups"`
}

// SeedReport counts what a seed applied.
type SeedReport struct {
	Classes      int  `json:"classes"`
	Competencies int  `json:"competencies"`
	Students     int  `json:"students"`
	Evaluations  int  `json:"evaluations"`
	Groups       int  `json:"groups"`
	Mirrored     int  `json:"mirrored"`
	DryRun       bool `json:"dry_run"`
}

// LoadFixture parses a seed file.
func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "read fixture", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, WrapExitError(ExitUsage, "parse fixture "+path, err)
	}
	return &f, nil
}

func newSeedCommand(opts *RootOptions, build Builder) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load classes, competencies, students, evaluations and groups from YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := LoadFixture(args[0])
			if err != nil {
				return err
			}

			p := newPrinter(opts, cmd.OutOrStdout())
			if dryRun {
				rep := SeedReport{
					Classes:      len(fx.Classes),
					Competencies: len(fx.Competencies),
					Students:     len(fx.Students),
					Evaluations:  len(fx.Evaluations),
					Groups:       len(fx.Groups),
					DryRun:       true,
				}
				return p.print(rep, rep.text)
			}

			ctx := cmd.Context()
			a, err := build(ctx, opts, cmd.ErrOrStderr(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := applyFixture(ctx, a, fx)
			if err != nil {
				return err
			}
			return p.print(rep, rep.text)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse the fixture and report counts without writing")
	return cmd
}

func applyFixture(ctx context.Context, a *app.App, fx *Fixture) (SeedReport, error) {
	var rep SeedReport
	h := a.Handlers

	for _, c := range fx.Classes {
		if _, err := h.SaveClass.Handle(ctx, command.SaveClassCommand{
			ID: c.ID, Name: c.Name, Grade: c.Grade, Shift: c.Shift, TeacherID: c.TeacherID,
		}); err != nil {
			return rep, fmt.Errorf("class %q: %w", c.Name, err)
		}
		rep.Classes++
	}
	for _, c := range fx.Competencies {
		if _, err := h.SaveCompetency.Handle(ctx, command.SaveCompetencyCommand{
			ID: c.ID, Code: c.Code, Name: c.Name, Subject: c.Subject, Description: c.Description, Grade: c.Grade,
		}); err != nil {
			return rep, fmt.Errorf("competency %q: %w", c.Code, err)
		}
		rep.Competencies++
	}
	for _, s := range fx.Students {
		if _, err := h.EnrollStudent.Handle(ctx, command.EnrollStudentCommand{
			ID: s.ID, Name: s.Name, Age: s.Age, Grade: s.Grade, ClassID: s.ClassID,
		}); err != nil {
			return rep, fmt.Errorf("student %q: %w", s.Name, err)
		}
		rep.Students++
	}
	for i, e := range fx.Evaluations {
		if _, err := h.RecordEvaluation.Handle(ctx, command.RecordEvaluationCommand{
			StudentID:    e.StudentID,
			CompetencyID: e.CompetencyID,
			Level:        e.Level,
			Bimester:     e.Bimester,
			Kind:         e.Kind,
			Score:        e.Score,
			MaxScore:     e.MaxScore,
			Feedback:     e.Feedback,
			Date:         e.Date,
		}); err != nil {
			return rep, fmt.Errorf("evaluation #%d: %w", i+1, err)
		}
		rep.Evaluations++
	}
	for _, g := range fx.Groups {
		if _, err := h.CreateGroup.Handle(ctx, command.CreateGroupCommand{
			Name:            g.Name,
			Subject:         g.Subject,
			CompetencyIDs:   g.CompetencyIDs,
			MemberIDs:       g.MemberIDs,
			Schedule:        g.Schedule,
			StartDate:       g.StartDate,
			ExpectedEndDate: g.ExpectedEndDate,
		}); err != nil {
			return rep, fmt.Errorf("group %q: %w", g.Name, err)
		}
		rep.Groups++
	}

	// Push the seeded writes to the remote now instead of waiting for a
	// worker.
	if a.Dispatcher != nil {
		job := jobs.NewDrainOutboxJob(a.Dispatcher, jobs.DrainOutboxConfig{MaxBatches: 100}, a.Logger)
		if err := job.Run(ctx); err != nil {
			return rep, fmt.Errorf("mirror seeded records: %w", err)
		}
		if st := job.LastRunStats(); st != nil {
			rep.Mirrored = st.Total.Acked
		}
	}
	return rep, nil
}

func (r SeedReport) text(w io.Writer) {
	prefix := "seeded"
	if r.DryRun {
		prefix = "would seed"
	}
	fmt.Fprintf(w, "%s %d class(es), %d competency(ies), %d student(s), %d evaluation(s), %d group(s)\n",
		prefix, r.Classes, r.Competencies, r.Students, r.Evaluations, r.Groups)
	if r.Mirrored > 0 {
		fmt.Fprintf(w, "mirrored %d record(s) to the remote store\n", r.Mirrored)
	}
}
