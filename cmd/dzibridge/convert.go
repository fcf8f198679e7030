package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newthinker/dzibridge/internal/bundle"
	"github.com/newthinker/dzibridge/internal/convert"
	"github.com/newthinker/dzibridge/internal/logger"
)

var convertCmd = &cobra.Command{
	Use:   "convert <image>",
	Short: "Convert one image into a DZI pyramid",
	Long: `Convert an image in place of the server: the pyramid is written to the
output directory and the counts are printed. With --zip the bundle is written
to a file as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

var (
	convertOut string
	convertZip string
)

func init() {
	convertCmd.Flags().StringVar(&convertOut, "out", "", "output directory (default from config)")
	convertCmd.Flags().StringVar(&convertZip, "zip", "", "also write the bundle to this file")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if convertOut != "" {
		cfg.Output.Dir = convertOut
	}

	outDir, err := convert.EnsureOutputDir(cfg.Output.Dir)
	if err != nil {
		return err
	}

	conv, err := convert.New(cfg.Output.TileOptions())
	if err != nil {
		return err
	}

	bridge := convert.NewBridge(conv, 1, log)
	ctx := cmd.Context()
	out, err := bridge.Submit(ctx, args[0], outDir).Wait(ctx)
	if err != nil {
		return err
	}

	related, err := bundle.CountRelated(out.Layout().Base)
	if err != nil {
		return err
	}
	total, err := bundle.CountDescriptors(outDir)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "descriptor:    %s\n", out.Descriptor)
	fmt.Fprintf(w, "related files: %d\n", related)
	fmt.Fprintf(w, "descriptors:   %d\n", total)

	if convertZip == "" {
		return nil
	}
	return writeBundle(out.Layout().Base, convertZip)
}

func writeBundle(base, path string) error {
	rdr, err := bundle.Build(base)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, rdr); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
