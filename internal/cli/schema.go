package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nonibytes/uniquery/uniquery"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the decorated schema of every published collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, closeDB, err := openStack(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		heading := color.New(color.FgCyan, color.Bold)
		relation := color.New(color.FgMagenta)
		dim := color.New(color.Faint)

		for _, collection := range stack.DataSource().Collections() {
			schema, err := collection.Schema()
			if err != nil {
				return err
			}
			heading.Printf("%s", collection.Name())
			if schema.Searchable {
				dim.Print("  (searchable)")
			}
			fmt.Println()

			names := make([]string, 0, len(schema.Fields))
			for name := range schema.Fields {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				switch field := schema.Fields[name].(type) {
				case *uniquery.ColumnSchema:
					marker := ""
					if field.IsPrimaryKey {
						marker = " pk"
					}
					fmt.Printf("  %-20s %s%s", name, field.ColumnType, marker)
					dim.Printf("  [%d operators]\n", len(field.FilterOperators))
				case *uniquery.ManyToOneSchema:
					relation.Printf("  %-20s -> %s (many-to-one)\n", name, field.ForeignCollection)
				case *uniquery.OneToOneSchema:
					relation.Printf("  %-20s -> %s (one-to-one)\n", name, field.ForeignCollection)
				case *uniquery.OneToManySchema:
					relation.Printf("  %-20s -> %s (one-to-many)\n", name, field.ForeignCollection)
				case *uniquery.ManyToManySchema:
					relation.Printf("  %-20s -> %s via %s (many-to-many)\n", name, field.ForeignCollection, field.ThroughCollection)
				}
			}
			if len(schema.Segments) > 0 {
				dim.Printf("  segments: %v\n", schema.Segments)
			}
			fmt.Println()
		}
		return nil
	},
}
