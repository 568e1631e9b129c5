package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/facedetector/internal/utils"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently processed transfers from the audit log",
	Run: func(cmd *cobra.Command, args []string) {
		runHistory(cmd)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of transfers to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command) {
	ctx := cmd.Context()
	db, err := openDB(ctx, true)
	if err != nil {
		utils.Die("Failed to open the audit log", err)
	}

	records, err := db.ListTransfers(ctx, historyLimit)
	if err != nil {
		utils.Die("Failed to list transfers", err)
	}

	if len(records) == 0 {
		fmt.Println("No transfers recorded yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tPEER\tFILE\tFACES\tOUTCOME\tSIZE\tDURATION")
	fmt.Fprintln(w, "----\t-------\t----\t----\t-----\t-------\t----\t--------")

	for _, r := range records {
		outcome := string(r.Outcome)
		if r.Error != "" {
			outcome += " (" + r.Error + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), shortID(r.SessionID), r.Peer, r.FileName,
			r.FaceCount, outcome, utils.HumanBytes(r.PayloadSize), r.Duration.Round(time.Millisecond))
	}
	w.Flush()
}

// shortID trims a session uuid to its first block for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
