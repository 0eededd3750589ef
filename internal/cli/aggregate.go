package cli

import (
	"github.com/spf13/cobra"

	"github.com/nonibytes/uniquery/uniquery/query"
)

var aggWhere []string
var aggSegment string
var aggOp string
var aggField string
var aggGroups []string
var aggLimit int
var aggTimezone string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <collection>",
	Short: "Run an aggregate query through the decorated surface",
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
		caller, err := callerWithTimezone(aggTimezone)
		if err != nil {
			return err
		}
		tree, err := parseWhere(aggWhere)
		if err != nil {
			return err
		}

		aggregation := query.Aggregation{
			Operation: query.AggregationOperation(aggOp),
			Field:     aggField,
		}
		for _, g := range aggGroups {
			aggregation.Groups = append(aggregation.Groups, query.AggregationGroup{Field: g})
		}

		results, err := collection.Aggregate(cmd.Context(), caller,
			query.Filter{ConditionTree: tree, Segment: aggSegment}, aggregation, aggLimit)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	aggregateCmd.Flags().StringArrayVar(&aggWhere, "where", nil, `Filter clause "field Operator [value]"; value is JSON or a raw string, repeatable`)
	aggregateCmd.Flags().StringVar(&aggSegment, "segment", "", "Named segment to apply")
	aggregateCmd.Flags().StringVar(&aggOp, "op", "Count", "Aggregation operation: Count, Sum, Avg, Max, Min")
	aggregateCmd.Flags().StringVar(&aggField, "field", "", "Field to aggregate, empty counts records")
	aggregateCmd.Flags().StringArrayVar(&aggGroups, "group", nil, "Field to group by, repeatable")
	aggregateCmd.Flags().IntVar(&aggLimit, "limit", 0, "Maximum number of buckets")
	aggregateCmd.Flags().StringVar(&aggTimezone, "timezone", "", "IANA timezone for date operators")
}
