package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nonibytes/uniquery/uniquery"
	"github.com/nonibytes/uniquery/uniquery/query"
)

var listWhere []string
var listSort []string
var listProjection []string
var listSearch string
var listSearchExtended bool
var listSegment string
var listLimit int
var listSkip int
var listTimezone string

var listCmd = &cobra.Command{
	Use:   "list <collection>",
	Short: "List records of a collection through the decorated surface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, closeDB, err := openStack(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		collection, err := stack.Collection(args[0])
		if err != nil {
			return err
		}
		caller, err := callerWithTimezone(listTimezone)
		if err != nil {
			return err
		}
		tree, err := parseWhere(listWhere)
		if err != nil {
			return err
		}

		filter := query.PaginatedFilter{
			Filter: query.Filter{
				ConditionTree:  tree,
				Search:         listSearch,
				SearchExtended: listSearchExtended,
				Segment:        listSegment,
			},
			Sort: parseSort(listSort),
		}
		if listLimit > 0 || listSkip > 0 {
			filter.Page = &query.Page{Skip: listSkip, Limit: listLimit}
		}

		projection := query.Projection(listProjection)
		if len(projection) == 0 {
			schema, err := collection.Schema()
			if err != nil {
				return err
			}
			for name, field := range schema.Fields {
				if !uniquery.IsRelation(field) {
					projection = append(projection, name)
				}
			}
		}

		records, err := collection.List(cmd.Context(), caller, filter, projection)
		if err != nil {
			return err
		}
		return printJSON(records)
	},
}

func callerWithTimezone(name string) (uniquery.Caller, error) {
	caller := uniquery.Caller{ID: "cli"}
	if name == "" {
		return caller, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return caller, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	caller.Timezone = loc
	return caller, nil
}

func init() {
	listCmd.Flags().StringArrayVar(&listWhere, "where", nil, `Filter clause "field Operator [value]"; value is JSON or a raw string, repeatable`)
	listCmd.Flags().StringArrayVar(&listSort, "sort", nil, `Sort clause "field [desc]", repeatable`)
	listCmd.Flags().StringArrayVar(&listProjection, "project", nil, "Field or relation path to return, repeatable")
	listCmd.Flags().StringVar(&listSearch, "search", "", "Free-text search term")
	listCmd.Flags().BoolVar(&listSearchExtended, "search-extended", false, "Extend search one hop into relations")
	listCmd.Flags().StringVar(&listSegment, "segment", "", "Named segment to apply")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of records")
	listCmd.Flags().IntVar(&listSkip, "skip", 0, "Number of records to skip")
	listCmd.Flags().StringVar(&listTimezone, "timezone", "", "IANA timezone for date operators")
}
