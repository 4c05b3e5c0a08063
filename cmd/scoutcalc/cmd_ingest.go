package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newIngestCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store a batch of scanned QR codes",
		Long: `Ingest stores QR payloads, one per line or tab separated, in the raw
collection. Payloads already stored are skipped. The batch is read from
--file, from a prompt on a terminal, or from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var batch string
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read batch: %w", err)
				}
				batch = string(b)
			} else {
				var err error
				if batch, err = promptBatch(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return fmt.Errorf("read batch: %w", err)
				}
			}

			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.in.Ingest(ctx, batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accepted %d, duplicates %d, invalid %d\n", res.Accepted, res.Duplicates, res.Invalid)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "File holding the QR batch")
	return cmd
}
