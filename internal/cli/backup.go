package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the store",
	Long: `Checkpoint the store into a single consistent file and copy it to the
backups directory. With compress_backups set, the copy is lz4-compressed.`,
	Run: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) {
	c := initConnectedContext()
	defer c.Close()

	if err := c.Stack.Backup(); err != nil {
		exitError("%v", err)
	}
	fmt.Println("Backup written.")
}
