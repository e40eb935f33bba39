package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const githubRepoSlug = "gitpod-io/wsagent"

// release is the part of a published release the update decision needs.
type release interface {
	LessOrEqual(other string) bool
	Version() string
}

// releaseSource finds the newest release and installs it over the binary.
type releaseSource interface {
	DetectLatest(ctx context.Context, slug string) (release, bool, error)
	Apply(ctx context.Context, rel release) error
}

type githubReleases struct{}

func (githubReleases) DetectLatest(ctx context.Context, slug string) (release, bool, error) {
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(slug))
	if err != nil || !found {
		return nil, found, err
	}
	return latest, true, nil
}

func (githubReleases) Apply(ctx context.Context, rel release) error {
	latest, ok := rel.(*selfupdate.Release)
	if !ok {
		return fmt.Errorf("unexpected release type %T", rel)
	}
	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	return selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe)
}

var releases releaseSource = githubReleases{}

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update wsagent to the latest version",
		Long: `Checks for the latest release of wsagent on GitHub and
replaces the running binary with it when it is newer.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var out io.Writer = io.Discard
	if cmd != nil {
		ctx = commandContext(cmd)
		out = cmd.OutOrStdout()
	}
	return selfUpdate(ctx, releases, rootCmd.Version, out)
}

func selfUpdate(ctx context.Context, src releaseSource, current string, out io.Writer) error {
	if current == "" || current == "dev" {
		return errors.New("cannot self-update a development version")
	}

	latest, found, err := src.DetectLatest(ctx, githubRepoSlug)
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s could not be found on GitHub", githubRepoSlug)
	}
	if latest.LessOrEqual(current) {
		fmt.Fprintf(out, "Current version (%s) is the latest\n", current)
		return nil
	}

	if err := src.Apply(ctx, latest); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}
	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
