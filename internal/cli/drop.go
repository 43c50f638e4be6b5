package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Delete the store",
	Long:  `Delete the store file and its side files. This cannot be undone.`,
	Run:   runDrop,
}

var dropForce bool

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "Skip confirmation")
}

func runDrop(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	if !c.Stack.Installed() {
		fmt.Println("Nothing to drop.")
		return
	}

	if !dropForce {
		fmt.Print("Delete the store and all its data? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := c.Stack.Drop(); err != nil {
		exitError("%v", err)
	}
	fmt.Println("Store dropped.")
}
