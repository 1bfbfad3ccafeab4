package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/fernwood/procure/internal/model"
)

var listCmd = &cobra.Command{
	Use:     "list <type>",
	Short:   "List resources of a type",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt := model.ResourceType(args[0])

		where, _ := cmd.Flags().GetString("where")
		orderBy, _ := cmd.Flags().GetString("order-by")

		resources, err := api.SearchResources(ctx, rt, json.RawMessage(where), json.RawMessage(orderBy))
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(resources)
			return nil
		}
		sch, err := api.GetSchema(ctx, rt)
		if err != nil {
			return err
		}
		printResourceList(resources, sch)
		return nil
	},
}

func init() {
	listCmd.Flags().String("where", "", `filter predicate, e.g. '{"==":[{"var":"Name"},"Acme"]}'`)
	listCmd.Flags().String("order-by", "", `ordering, e.g. '[{"var":"Name","dir":"asc"}]'`)
}
