package main

import (
	"fmt"
	"os"

	"github.com/okian/scoutcalc/internal/domain/qr"
	"github.com/spf13/cobra"
)

func newRenderQRCommand() *cobra.Command {
	var (
		out  string
		size int
	)
	cmd := &cobra.Command{
		Use:   "render-qr <payload>",
		Short: "Render a QR payload as a PNG",
		Long:  `Render-qr draws a compressed scouting payload as a QR code image, for printing scanner test sheets.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			png, err := qr.RenderPNG(args[0], size)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil { //nolint:gosec // images are meant to be shared
				return fmt.Errorf("write image: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "qr.png", "Output file")
	cmd.Flags().IntVar(&size, "size", qr.DefaultImageSize, "Image edge length in pixels")
	return cmd
}
