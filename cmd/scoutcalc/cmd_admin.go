package main

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/okian/scoutcalc/internal/ingest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var errEmptySelector = errors.New("select raw QRs with at least one of --pattern, --serial, --match, --team, --scout")

// selectorFlags binds the raw QR selector shared by the admin commands.
type selectorFlags struct {
	pattern string
	serial  string
	match   int
	team    string
	scout   string
}

func (s *selectorFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&s.pattern, "pattern", "", "Regular expression over the QR payload")
	fs.StringVar(&s.serial, "serial", "", "Serial number")
	fs.IntVar(&s.match, "match", 0, "Match number")
	fs.StringVar(&s.team, "team", "", "Team number")
	fs.StringVar(&s.scout, "scout", "", "Scout name (case-insensitive)")
}

func (s *selectorFlags) selector() (ingest.Selector, error) {
	sel := ingest.Selector{Serial: s.serial, Match: s.match, Team: s.team, Scout: s.scout}
	if s.pattern != "" {
		re, err := regexp.Compile(s.pattern)
		if err != nil {
			return sel, fmt.Errorf("pattern: %w", err)
		}
		sel.Pattern = re
	}
	if sel.Pattern == nil && sel.Serial == "" && sel.Match == 0 && sel.Team == "" && sel.Scout == "" {
		return sel, errEmptySelector
	}
	return sel, nil
}

func newBlocklistCommand() *cobra.Command {
	var (
		sf   selectorFlags
		undo bool
	)
	cmd := &cobra.Command{
		Use:   "blocklist",
		Short: "Exclude raw QRs from every calculation",
		Long: `Blocklist flags the selected raw QRs so the next cycle removes the
records they produced. --undo clears the flag again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := sf.selector()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.in.Blocklist(cmd.Context(), sel, !undo)
			if err != nil {
				return err
			}
			verb := "blocklisted"
			if undo {
				verb = "restored"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d QR(s)\n", verb, n)
			return nil
		},
	}
	sf.bind(cmd.Flags())
	cmd.Flags().BoolVar(&undo, "undo", false, "Clear the blocklist flag instead of setting it")
	return cmd
}

func newOverrideCommand() *cobra.Command {
	var (
		sf    selectorFlags
		field string
		value string
	)
	cmd := &cobra.Command{
		Use:   "override",
		Short: "Correct a decoded field of raw QRs",
		Long: `Override records a replacement value for one field of the selected raw
QRs. The value is read as a number or boolean when it looks like one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := sf.selector()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.in.Override(cmd.Context(), sel, field, value)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "overrode %s on %d QR(s)\n", field, n)
			return nil
		},
	}
	sf.bind(cmd.Flags())
	cmd.Flags().StringVar(&field, "field", "", "Field to override")
	cmd.Flags().StringVar(&value, "value", "", "Replacement value")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}
