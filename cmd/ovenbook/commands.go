package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Complete every ACTIVE booking whose end has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.sweeper.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d booking(s)\n", n)
			return nil
		},
	}
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all booking tables to an xlsx workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			exp := a.exporter()
			if exp == nil {
				return fmt.Errorf("export needs the sqlite3 or postgres driver")
			}
			path, err := exp.ExportToDir(ctx, outDir, a.clock.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "exports", "output directory")
	return cmd
}

func newMaintenanceCommand(opts *rootOptions) *cobra.Command {
	var adminID string
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Put an oven into or out of maintenance",
	}
	cmd.PersistentFlags().StringVar(&adminID, "admin", "", "id of the admin performing the change (required)")
	_ = cmd.MarkPersistentFlagRequired("admin")

	cmd.AddCommand(&cobra.Command{
		Use:   "set OVEN_ID",
		Short: "Flag an oven for maintenance and auto-cancel its active bookings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ovenID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid oven id %q", args[0])
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			actor, err := a.adminActor(ctx, adminID)
			if err != nil {
				return err
			}
			n, err := a.engine.SetOvenMaintenance(ctx, actor, ovenID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "oven %d under maintenance, %d booking(s) auto-cancelled\n", ovenID, n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear OVEN_ID",
		Short: "Return an oven to service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ovenID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid oven id %q", args[0])
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.close()

			actor, err := a.adminActor(ctx, adminID)
			if err != nil {
				return err
			}
			if err := a.engine.ClearOvenMaintenance(ctx, actor, ovenID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "oven %d available\n", ovenID)
			return nil
		},
	})
	return cmd
}
