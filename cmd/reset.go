package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB      bool
	resetFiles   bool
	resetYes     bool
	resetStorage string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (stored images, audit log)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetFiles {
			root := Cfg.Storage.Root
			if cmd.Flags().Changed("storage") {
				root = resetStorage
			}
			if resetYes || confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all received and processed images under %s?", root)) {
				fmt.Println("🗑️  Clearing stored images...")
				st, err := storage.New(root, storage.NamespaceSession)
				if err != nil {
					utils.Die("Invalid storage root", err)
				}
				if err := st.Clear(); err != nil {
					utils.Die("Failed to clear storage", err)
				}
			}
		}

		if resetDB {
			if resetYes || confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP the audit log tables?") {
				fmt.Println("🗑️  Clearing Database...")
				db, err := openDB(cmd.Context(), true)
				if err != nil {
					utils.Die("Failed to open the audit log", err)
				}
				if err := db.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err)
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "audit", false, "Clear the PostgreSQL audit log")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear received and processed images")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip confirmation prompts")
	resetCmd.Flags().StringVarP(&resetStorage, "storage", "s", "images", "Root directory holding the image areas")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
