package setup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ponytojas/mqtt-team-bridge/internal/database"
	"github.com/ponytojas/mqtt-team-bridge/internal/models"
)

// ConfirmWord must be typed to allow a reset
const ConfirmWord = "DELETE"

const rule = "======================================================================"

// Admin is the part of the store used to reset team collections
type Admin interface {
	Describe(ctx context.Context, team models.Team) (database.CollectionInfo, error)
	Drop(ctx context.Context, team models.Team) error
	EnsureCollection(ctx context.Context, team models.Team) error
	Insert(ctx context.Context, team models.Team, reading models.Reading) (string, error)
}

// Failure records a team that could not be reset
type Failure struct {
	Team string
	Err  error
}

// Result summarizes a reset run
type Result struct {
	Teams    int
	Created  []string
	Failed   []Failure
	Verified []database.CollectionInfo
}

// Ready counts verified collections that exist as time series
func (r Result) Ready() int {
	n := 0
	for _, info := range r.Verified {
		if info.Exists && info.TimeSeries {
			n++
		}
	}
	return n
}

// Inspect describes every team collection
func Inspect(ctx context.Context, store Admin, teams []models.Team) ([]database.CollectionInfo, error) {
	infos := make([]database.CollectionInfo, 0, len(teams))
	for _, team := range teams {
		info, err := store.Describe(ctx, team)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect team %s: %w", team.Name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func kind(info database.CollectionInfo) string {
	switch {
	case !info.Exists:
		return "Missing"
	case info.TimeSeries:
		return "TimeSeries"
	default:
		return "Regular"
	}
}

// PrintCollections writes a table of collections with their type and size
func PrintCollections(w io.Writer, infos []database.CollectionInfo) {
	fmt.Fprintf(w, "%-36s %-12s %-10s\n", "Collection", "Type", "Docs")
	fmt.Fprintln(w, strings.Repeat("-", len(rule)))

	var total int64
	for _, info := range infos {
		fmt.Fprintf(w, "%-36s %-12s %-10d\n", info.Name, kind(info), info.Documents)
		total += info.Documents
	}

	fmt.Fprintln(w, strings.Repeat("-", len(rule)))
	fmt.Fprintf(w, "%-36s %-12s %-10d\n", "TOTAL", "", total)
}

// Confirm warns about data loss and reads one line from r. Only ConfirmWord
// allows the reset to go ahead.
func Confirm(r io.Reader, w io.Writer) bool {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "WARNING: DESTRUCTIVE OPERATION")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "This will DELETE all team collections and recreate them.")
	fmt.Fprintln(w, "All existing data will be PERMANENTLY LOST.")
	fmt.Fprintf(w, "\nType '%s' to confirm: ", ConfirmWord)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.TrimSpace(line) == ConfirmWord
}

// Reset drops and recreates every team collection, seeding each with a
// welcome document, then verifies them. A failing team does not stop the
// others.
func Reset(ctx context.Context, store Admin, teams []models.Team, now func() time.Time) (Result, error) {
	logger := log.With().Str("component", "setup").Logger()
	res := Result{Teams: len(teams)}

	for _, team := range teams {
		if err := resetTeam(ctx, store, team, now()); err != nil {
			logger.Error().Err(err).Str("team", team.Name).Msg("Failed to reset team collection")
			res.Failed = append(res.Failed, Failure{Team: team.Name, Err: err})
			continue
		}
		logger.Info().Str("team", team.Name).Msg("Created team collection")
		res.Created = append(res.Created, team.Name)
	}

	verified, err := Inspect(ctx, store, teams)
	if err != nil {
		return res, err
	}
	res.Verified = verified
	return res, nil
}

func resetTeam(ctx context.Context, store Admin, team models.Team, now time.Time) error {
	if err := store.Drop(ctx, team); err != nil {
		return err
	}
	if err := store.EnsureCollection(ctx, team); err != nil {
		return err
	}
	if _, err := store.Insert(ctx, team, database.WelcomeReading(team, now)); err != nil {
		return fmt.Errorf("failed to insert welcome document: %w", err)
	}
	return nil
}

// Print writes the verification table and the final summary
func (r Result) Print(w io.Writer) {
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "VERIFICATION")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%-36s %-12s %-10s\n", "Collection", "Type", "Status")
	fmt.Fprintln(w, strings.Repeat("-", len(rule)))
	for _, info := range r.Verified {
		status := "OK"
		if !info.Exists || !info.TimeSeries {
			status = "Wrong type"
		}
		fmt.Fprintf(w, "%-36s %-12s %-10s\n", info.Name, kind(info), status)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Successfully created: %d/%d collections\n", len(r.Created), r.Teams)
	fmt.Fprintf(w, "Successfully verified: %d/%d collections\n", r.Ready(), r.Teams)

	if len(r.Failed) > 0 {
		names := make([]string, 0, len(r.Failed))
		for _, f := range r.Failed {
			names = append(names, f.Team)
		}
		fmt.Fprintf(w, "\nFailed teams: %s\n", strings.Join(names, ", "))
	}

	if r.Ready() == r.Teams {
		fmt.Fprintln(w, "\nAll TimeSeries collections are ready!")
	} else {
		fmt.Fprintln(w, "\nSome collections need attention. Check errors above.")
	}
}
