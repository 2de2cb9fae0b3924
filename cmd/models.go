package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roostlabs/roost/internal/catalog"
)

func modelsCmd() *cobra.Command {
	var maxPrice float64
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the model catalog and registered tool names",
		Run: func(cmd *cobra.Command, args []string) {
			names := catalog.Names()
			if maxPrice > 0 {
				names = catalog.NamesBelowPrice(maxPrice)
			}

			fmt.Println("Models:")
			for _, name := range names {
				spec, err := catalog.Resolve(name)
				if err != nil {
					continue
				}
				window := ""
				if spec.Restriction.Limited() {
					window = fmt.Sprintf("  (%d tokens / %s, %s)",
						spec.Restriction.MaxTokens, spec.Restriction.Interval, spec.Restriction.Policy)
				}
				fmt.Printf("  %-32s %-8s $%.2f/1M%s\n", spec.Name, spec.Family, spec.InputPricePer1M, window)
			}

			fmt.Println()
			fmt.Println("Tools:")
			for _, name := range catalog.Tools() {
				fmt.Printf("  %s\n", name)
			}
		},
	}
	cmd.Flags().Float64Var(&maxPrice, "max-price", 0, "only list models under this USD price per million input tokens")
	return cmd
}
