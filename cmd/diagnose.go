/*
Copyright © 2022 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tupyy/camsetup/internal/provision"
	"github.com/tupyy/camsetup/internal/report"
	"github.com/tupyy/camsetup/internal/system"
	"github.com/tupyy/camsetup/internal/systemd"
	"go.uber.org/zap"
)

var outputFormat string

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Inspect the multimedia stack without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := setupLogger("")
		defer logger.Sync()

		undo := zap.ReplaceGlobals(logger)
		defer undo()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		runner := system.New()
		units := systemd.NewManager(ctx)
		defer units.Close()

		rep := provision.New(runner, units, provision.Options{}).Diagnose(ctx)

		switch outputFormat {
		case "text":
			fmt.Print(report.Text(rep))
		case "json":
			out, err := report.JSON(rep)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(out))
		case "yaml":
			out, err := report.YAML(rep)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, string(out))
		default:
			return fmt.Errorf("unknown output format %q", outputFormat)
		}

		return nil
	},
}

func init() {
	diagnoseCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(diagnoseCmd)
}
