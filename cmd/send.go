package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresmejia3/facedetector/internal/client"
	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/types"
	"github.com/andresmejia3/facedetector/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	sendAddr     string
	sendOutput   string
	sendProgress bool
	sendTimeout  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <files...>",
	Short: "Send images to a server in one session and save the processed results",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transfers, err := readTransfers(args)
		if err != nil {
			return err
		}

		st, err := storage.New(sendOutput, storage.NamespaceShared)
		if err != nil {
			return err
		}

		c := &client.Client{Addr: sendAddr, Timeout: sendTimeout, Storage: st}
		if sendProgress {
			bar := progressbar.NewOptions64(requestSize(transfers),
				progressbar.OptionSetDescription("📤 Uploading"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowBytes(true),
				progressbar.OptionClearOnFinish(),
			)
			defer bar.Finish()
			c.Progress = bar
		}

		results, err := c.Send(cmd.Context(), transfers)
		for _, res := range results {
			fmt.Fprintf(os.Stderr, "✅ %s -> %s (%s)\n", res.Name, res.Path, utils.HumanBytes(int64(res.Size)))
		}
		if err != nil {
			utils.Die(fmt.Sprintf("Session ended after %d of %d files", len(results), len(transfers)), err)
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&sendAddr, "addr", "a", "127.0.0.1:5000", "Server address")
	sendCmd.Flags().StringVarP(&sendOutput, "output", "o", "images", "Root directory for processed results")
	sendCmd.Flags().BoolVarP(&sendProgress, "progress", "p", true, "Show an upload progress bar")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 60*time.Second, "Deadline for connecting and for each frame (0 disables)")
	rootCmd.AddCommand(sendCmd)
}

// readTransfers loads every file, naming each transfer after its base name.
func readTransfers(paths []string) ([]types.Transfer, error) {
	seen := make(map[string]string, len(paths))
	transfers := make([]types.Transfer, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("%s and %s share the name %s", prev, p, name)
		}
		seen[name] = p

		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%s is empty", p)
		}
		transfers = append(transfers, types.Transfer{Name: name, Payload: data})
	}
	return transfers, nil
}

// requestSize is the number of bytes the request puts on the wire.
func requestSize(transfers []types.Transfer) int64 {
	n := int64(4)
	for _, t := range transfers {
		n += 4 + int64(len(t.Name)) + 8 + int64(len(t.Payload))
	}
	return n
}
