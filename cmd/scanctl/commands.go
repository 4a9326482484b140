package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BearBump/ScanBox/config"
	"github.com/BearBump/ScanBox/internal/carrier"
	"github.com/BearBump/ScanBox/internal/client"
	"github.com/BearBump/ScanBox/internal/models"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	addr       string
	token      string
	station    string
	configPath string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:          "scanctl",
		Short:        "Operator CLI for the ScanBox intake API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&f.addr, "addr", envOr("SCANBOX_ADDR", "http://localhost:8080"), "scan-api base URL")
	root.PersistentFlags().StringVar(&f.token, "token", os.Getenv("SCANBOX_TOKEN"), "operator API token")
	root.PersistentFlags().StringVar(&f.station, "station", os.Getenv("SCANBOX_STATION"), "station id sent as X-Station-ID")
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "YAML config with a custom carrier table (classify only)")

	root.AddCommand(
		newClassifyCmd(f),
		newSubmitCmd(f),
		newGetCmd(f),
		newDeleteCmd(f),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (f *rootFlags) client() *client.Client {
	return client.New(f.addr, f.token, f.station)
}

// classify работает без сервера: таблица по умолчанию или из --config.
func newClassifyCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <tracking>...",
		Short: "Classify tracking numbers locally",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules := carrier.DefaultRules()
			if f.configPath != "" {
				cfg, err := config.LoadConfig(f.configPath)
				if err != nil {
					return err
				}
				rules = cfg.CarrierRules()
			}
			cl, err := carrier.NewClassifier(rules)
			if err != nil {
				return err
			}

			failed := 0
			for _, raw := range args {
				res, err := cl.Classify(raw)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tINVALID\t%v\n", raw, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", raw, res.Carrier, res.TrackingNumber)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tracking numbers are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newSubmitCmd(f *rootFlags) *cobra.Command {
	var in models.ScanSubmitInput
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Register a scanned package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := f.client().Submit(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&in.TrackingNumber, "tracking", "", "tracking number as scanned")
	cmd.Flags().StringVar(&in.SerialNumber, "serial", "", "package serial number")
	_ = cmd.MarkFlagRequired("tracking")
	_ = cmd.MarkFlagRequired("serial")
	return cmd
}

func newGetCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a scan record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := f.client().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newDeleteCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a scan record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.client().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
