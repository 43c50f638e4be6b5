package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/othierry/facade"
	"github.com/othierry/facade/engine"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the store status",
	Long:  `Show the configured store, its installation state and per-entity record counts.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	c := initContext()
	defer c.Close()

	fmt.Printf("Store type: %s\n", storeTypeName(c.Options))
	if c.Options.StoreName != "" {
		fmt.Printf("Store name: %s\n", c.Options.StoreName)
	}
	if c.Options.Location != "" {
		fmt.Printf("Location:   %s\n", c.Options.Location)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	if !c.Stack.Installed() && storeTypeName(c.Options) != facade.MemoryStoreType {
		red.Println("\nStore is not installed")
		fmt.Println("Use 'facade seed <source>' to install from a prepared store file.")
		return
	}

	if err := c.Stack.Connect(); err != nil {
		exitError("failed to connect store: %v", err)
	}
	green.Println("\nStore is installed")

	fmt.Println("\nEntities:")
	for _, entity := range c.Stack.Model().Entities {
		req := engine.NewFetchRequest(entity.Name)
		n, err := c.Stack.Main().PerformCount(req)
		if err != nil {
			red.Printf("  %-16s (count failed: %v)\n", entity.Name, err)
			continue
		}
		fmt.Printf("  %-16s %d records\n", entity.Name, n)
	}
}

func storeTypeName(opts *facade.Options) string {
	if opts.StoreType == "" {
		return facade.SQLiteStoreType
	}
	return opts.StoreType
}
