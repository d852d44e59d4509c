package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cardlens/benefit-cli/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <record-id>",
	Short: "Export a record's aggregated benefits to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		recordID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		raw, err := st.GetRawRecord(ctx, recordID)
		if err != nil {
			return err
		}
		rec, err := st.GetBenefitRecord(ctx, recordID)
		if err != nil {
			return err
		}

		wb, err := export.Build(raw, rec)
		if err != nil {
			return err
		}

		out := exportOut
		if out == "" {
			out = "benefits-" + recordID + ".xlsx"
		}
		if err := wb.Save(out); err != nil {
			return err
		}

		zap.L().Info("workbook written",
			zap.String("record_id", recordID),
			zap.String("path", out),
			zap.Int("benefits", len(rec.Benefits)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (default benefits-<record-id>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
