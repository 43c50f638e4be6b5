package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/othierry/facade/engine"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <entity>",
	Short: "List records of an entity",
	Long:  `Fetch and print records of one entity, optionally filtered and paged.`,
	Args:  cobra.ExactArgs(1),
	Run:   runInspect,
}

var (
	inspectLimit  int
	inspectOffset int
	inspectSort   string
)

func init() {
	inspectCmd.Flags().IntVarP(&inspectLimit, "limit", "n", 20, "Maximum records to print")
	inspectCmd.Flags().IntVar(&inspectOffset, "offset", 0, "Records to skip")
	inspectCmd.Flags().StringVarP(&inspectSort, "sort", "s", "", "Sort spec, e.g. \"name\" or \"age DESC\"")
}

func runInspect(cmd *cobra.Command, args []string) {
	c := initConnectedContext()
	defer c.Close()

	entity := args[0]
	if _, ok := c.Stack.Model().Entity(entity); !ok {
		exitError("unknown entity %q", entity)
	}

	req := engine.NewFetchRequest(entity)
	req.Limit = inspectLimit
	req.Offset = inspectOffset
	if inspectSort != "" {
		keys, err := engine.ParseSortDescriptors(inspectSort)
		if err != nil {
			exitError("%v", err)
		}
		req.Sort = keys
	}

	rows, err := c.Stack.Main().PerformFetch(req)
	if err != nil {
		exitError("fetch failed: %v", err)
	}

	cyan := color.New(color.FgCyan)
	total, _ := c.Stack.Main().PerformCount(engine.NewFetchRequest(entity))
	fmt.Printf("%s: showing %d of %d\n\n", entity, len(rows), total)

	for _, row := range rows {
		cyan.Printf("%s/%s\n", entity, shortID(row.ID))
		fields := make([]string, 0, len(row.Values))
		for field := range row.Values {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Printf("  %-16s %v\n", field, row.Values[field])
		}
	}
}
