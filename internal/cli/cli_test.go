package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/config"
	"github.com/edutracker/edutracker/internal/app"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/pkg/logger"
)

// localBuilder builds a process-local app and remembers it so tests can
// inspect the stores after the command closed it.
func localBuilder(t *testing.T, built **app.App) Builder {
	t.Helper()
	return func(ctx context.Context, _ *RootOptions, _ io.Writer, ao app.Options) (*app.App, error) {
		cfg := &config.Config{
			App: config.AppConfig{Name: "edutracker", Environment: config.EnvDevelopment, Location: time.UTC},
			Sync: config.SyncConfig{
				ResyncMode:       "overwrite",
				DispatchInterval: time.Second,
				MaxAttempts:      3,
				BatchSize:        10,
			},
		}
		a, err := app.Build(ctx, cfg, logger.Nop(), ao)
		if err == nil && built != nil {
			*built = a
		}
		return a, err
	}
}

func execute(t *testing.T, build Builder, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(build)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make(map[string]*cobra.Command)
	for _, c := range cmd.Commands() {
		names[c.Name()] = c
	}
	for _, want := range []string{"migrate", "seed", "resync", "outbox", "standing"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"env-file", "format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
	assert.NotNil(t, names["seed"].Flags().Lookup("dry-run"))
	assert.NotNil(t, names["resync"].Flags().Lookup("mode"))

	sub := make(map[string]bool)
	for _, c := range names["outbox"].Commands() {
		sub[c.Name()] = true
	}
	assert.Equal(t, map[string]bool{"stats": true, "failed": true, "retry": true}, sub)
}

func TestStanding(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		out, err := execute(t, nil, "standing", "not_achieved")
		require.NoError(t, err)
		assert.Contains(t, out, "not_achieved → needs_reinforcement")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, nil, "--format", "json", "standing", "exceeded")
		require.NoError(t, err)

		var v map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &v))
		assert.Equal(t, "exceeded", v["level"])
		assert.Equal(t, "adequate", v["standing"])
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := execute(t, nil, "standing", "excellent")
		require.Error(t, err)
		assert.Equal(t, ExitUsage, ExitCode(err))
	})
}

func golden(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestGoldenOutput(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"standing_exceeded_json", []string{"--format", "json", "standing", "exceeded"}},
		{"standing_not_achieved_text", []string{"standing", "not_achieved"}},
		{"seed_dry_run_text", []string{"seed", "--dry-run", writeFixture(t, fixtureYAML)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := execute(t, nil, tc.args...)
			require.NoError(t, err)
			golden(t).Assert(t, tc.name, []byte(out))
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, nil, "--format", "yaml", "standing", "achieved")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

const fixtureYAML = `
classes:
  - id: class-5a
    name: 5º A
    grade: 5º ano
    shift: morning
competencies:
  - id: comp-ma01
    code: EF05MA01
    name: Ler números naturais
    grade: 5º ano
students:
  - id: ana
    name: Ana
    age: 10
    class_id: class-5a
  - id: bruno
    name: Bruno
    age: 11
    class_id: class-5a
evaluations:
  - student_id: ana
    competency_id: comp-ma01
    level: not_achieved
    bimester: B1
    date: "2024-03-10"
  - student_id: bruno
    competency_id: comp-ma01
    level: achieved
    bimester: B1
    date: "2024-03-10"
groups:
  - name: Matemática reforço
    subject: Matemática
    competency_ids: [comp-ma01]
    member_ids: [ana]
    schedule: Terças 14h
`

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSeed(t *testing.T) {
	path := writeFixture(t, fixtureYAML)

	var a *app.App
	out, err := execute(t, localBuilder(t, &a), "seed", path)
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 1 class(es), 1 competency(ies), 2 student(s), 2 evaluation(s), 1 group(s)")
	require.NotNil(t, a)

	ctx := context.Background()
	ana, err := a.Repos.Students.GetByID(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, student.StandingNeedsReinforcement, ana.Standing)

	bruno, err := a.Repos.Students.GetByID(ctx, "bruno")
	require.NoError(t, err)
	assert.Equal(t, student.StandingAdequate, bruno.Standing)

	groups, err := a.Handlers.Catalog.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"ana"}, groups[0].MemberIDs)
}

func TestSeed_DryRunDoesNotBuild(t *testing.T) {
	path := writeFixture(t, fixtureYAML)

	build := func(context.Context, *RootOptions, io.Writer, app.Options) (*app.App, error) {
		t.Fatal("dry run must not open the stores")
		return nil, nil
	}
	out, err := execute(t, build, "--format", "json", "seed", "--dry-run", path)
	require.NoError(t, err)

	var rep SeedReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.True(t, rep.DryRun)
	assert.Equal(t, 2, rep.Students)
	assert.Equal(t, 1, rep.Groups)
}

func TestSeed_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, localBuilder(t, nil), "seed", filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Equal(t, ExitUsage, ExitCode(err))
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := execute(t, localBuilder(t, nil), "seed", writeFixture(t, "students: [\n"))
		require.Error(t, err)
		assert.Equal(t, ExitUsage, ExitCode(err))
	})

	t.Run("unknown group member", func(t *testing.T) {
		body := `
students:
  - id: ana
    name: Ana
groups:
  - name: G
    subject: Matemática
    member_ids: [ana, ghost]
`
		_, err := execute(t, localBuilder(t, nil), "seed", writeFixture(t, body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `group "G"`)
	})
}

func TestOutboxStats(t *testing.T) {
	out, err := execute(t, localBuilder(t, nil), "--format", "json", "outbox", "stats")
	require.NoError(t, err)

	var st map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 0, st["depth"])
	assert.Equal(t, 0, st["failed"])
}

func TestOutboxFailedAndRetry_Empty(t *testing.T) {
	out, err := execute(t, localBuilder(t, nil), "outbox", "failed")
	require.NoError(t, err)
	assert.Contains(t, out, "no failed tasks")

	out, err = execute(t, localBuilder(t, nil), "outbox", "retry")
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 0 task(s)")
}

func TestMigrate_WithoutDatabase(t *testing.T) {
	_, err := execute(t, localBuilder(t, nil), "migrate", "status")
	require.Error(t, err)
	assert.Equal(t, ExitUnavailable, ExitCode(err))

	_, err = execute(t, localBuilder(t, nil), "migrate", "sideways")
	require.Error(t, err)
}

func TestResync_WithoutRemote(t *testing.T) {
	_, err := execute(t, localBuilder(t, nil), "resync", "--mode", "merge")
	require.Error(t, err)
	assert.Equal(t, ExitUnavailable, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(assert.AnError))
	assert.Equal(t, ExitConfig, ExitCode(WrapExitError(ExitConfig, "load", assert.AnError)))
	assert.ErrorIs(t, WrapExitError(ExitConfig, "load", assert.AnError), assert.AnError)
}
