package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cardlens/benefit-cli/internal/model"
)

var (
	recordsSession string
	recordsBank    string
	recordsLimit   int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect persisted raw records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List raw records",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		page, err := st.ListRawRecords(cmd.Context(), model.RecordFilter{
			SessionID: recordsSession,
			BankKey:   recordsBank,
			Limit:     recordsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tBANK\tCARD\tSOURCES\tCHARS\tCREATED")
		for _, r := range page.Items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				r.ID, r.BankKey, r.CardName, len(r.Sources), r.TotalChars,
				r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d of %d record(s)\n", len(page.Items), page.Total)
		return nil
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <record-id>",
	Short: "Delete a raw record and its aggregated benefits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeleteRawRecord(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

func init() {
	recordsListCmd.Flags().StringVar(&recordsSession, "session", "", "filter by session id")
	recordsListCmd.Flags().StringVar(&recordsBank, "bank", "", "filter by bank key")
	recordsListCmd.Flags().IntVar(&recordsLimit, "limit", 50, "max records to list")
	recordsCmd.AddCommand(recordsListCmd, recordsDeleteCmd)
	rootCmd.AddCommand(recordsCmd)
}
