package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/helixml/branchscope/domain/branch"
	"github.com/helixml/branchscope/infrastructure/git"
	"github.com/helixml/branchscope/internal/log"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

var errUnknownFormat = errors.New("unknown output format")

func branchesCmd() *cobra.Command {
	var (
		envFile string
		output  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "branches <url>",
		Short: "List the branches of a remote repository",
		Long: `List the branches of a remote repository and mark the default one.

The URL may be given with or without scheme, e.g. github.com/acme/widgets.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(envFile)
			if err != nil {
				return err
			}
			ref, err := parseRemote(args[0])
			if err != nil {
				return err
			}

			resolver := git.NewResolver(
				git.WithResolverBinary(cfg.GitBinary()),
				git.WithTimeout(timeout),
				git.WithResolverLogger(log.New(cmd.ErrOrStderr(), cfg.LogFormat(), cfg.LogLevel())),
			)
			branches, err := resolver.AllBranches(cmd.Context(), ref.URL())
			if err != nil {
				return fmt.Errorf("list branches of %s: %w", ref.Path(), err)
			}
			return writeBranches(cmd.OutOrStdout(), output, branches)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVarP(&output, "output", "o", formatYAML, "Output format: yaml, json")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Remote lookup timeout")

	return cmd
}

// parseRemote reads host/owner/repository from a URL such as
// https://github.com/acme/widgets.git or github.com/acme/widgets.
func parseRemote(raw string) (branch.Reference, error) {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return branch.Reference{}, fmt.Errorf("parse %q: %w", raw, branch.ErrInvalidReference)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if u.Host == "" || len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return branch.Reference{}, fmt.Errorf("%q is not host/owner/repository: %w", raw, branch.ErrInvalidReference)
	}
	return branch.NewReference(u.Host, parts[0], parts[1], ""), nil
}

func writeBranches(w io.Writer, format string, branches git.Branches) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(branches); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(branches); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownFormat, format)
	}
}
