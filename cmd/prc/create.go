package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernwood/procure/internal/model"
)

var createCmd = &cobra.Command{
	Use:     "create <type>",
	Short:   "Create a resource",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt := model.ResourceType(args[0])

		pairs, _ := cmd.Flags().GetStringArray("set")
		sch, err := api.GetSchema(ctx, rt)
		if err != nil {
			return err
		}
		inputs, err := parseSetFlags(sch, pairs)
		if err != nil {
			return err
		}

		res, err := api.CreateResource(ctx, rt, inputs)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(res)
			return nil
		}
		fmt.Printf("created %s %s/%d\n", res.ID, res.Type, res.Key)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id | type/key>",
	Short:   "Update resource fields",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		res, err := resolveResource(ctx, args[0])
		if err != nil {
			return err
		}

		pairs, _ := cmd.Flags().GetStringArray("set")
		if len(pairs) == 0 {
			return fmt.Errorf("nothing to update: pass at least one --set Field=value")
		}
		sch, err := api.GetSchema(ctx, res.Type)
		if err != nil {
			return err
		}
		inputs, err := parseSetFlags(sch, pairs)
		if err != nil {
			return err
		}

		updated, err := api.UpdateResource(ctx, res.ID, inputs)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(updated)
			return nil
		}
		printResource(updated, sch)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id | type/key>",
	Short:   "Delete a resource",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		res, err := resolveResource(ctx, args[0])
		if err != nil {
			return err
		}
		if err := api.DeleteResource(ctx, res.ID); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", res.ID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringArray("set", nil, "field value as Field=value (repeatable)")
	updateCmd.Flags().StringArray("set", nil, "field value as Field=value (repeatable)")
}
