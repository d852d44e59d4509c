package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardlens/benefit-cli/internal/compare"
)

var compareCmd = &cobra.Command{
	Use:   "compare <record-id> <record-id> [record-id...]",
	Short: "Compare aggregated benefits across records side by side",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		inputs := make([]compare.Input, 0, len(args))
		for _, id := range args {
			raw, err := st.GetRawRecord(ctx, id)
			if err != nil {
				return err
			}
			rec, err := st.GetBenefitRecord(ctx, id)
			if err != nil {
				return err
			}
			inputs = append(inputs, compare.Input{Raw: raw, Rec: rec})
		}

		result, err := compare.Run(inputs)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
