package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [source]",
	Short: "Install a prepared store file",
	Long: `Copy a prepared store file into the configured location. Sources with an
.lz4 extension are decompressed on the fly. Without an argument the
configured seed_source is used.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	src := ""
	if len(args) == 1 {
		src = args[0]
	}
	if err := c.Stack.Seed(src); err != nil {
		exitError("%v", err)
	}
	fmt.Println("Store seeded.")
}
