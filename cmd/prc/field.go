package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fernwood/procure/internal/model"
	"github.com/fernwood/procure/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:     "schema <type>",
	Short:   "Show the schema for a resource type",
	GroupID: "schema",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sch, err := api.GetSchema(context.Background(), model.ResourceType(args[0]))
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(sch)
			return nil
		}
		printSchema(sch)
		return nil
	},
}

var provisionCmd = &cobra.Command{
	Use:     "provision",
	Short:   "Seed the account with system fields and layouts",
	GroupID: "schema",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.ProvisionAccount(context.Background()); err != nil {
			return err
		}
		fmt.Printf("account %s provisioned\n", accountID)
		return nil
	},
}

var fieldCmd = &cobra.Command{
	Use:     "field",
	Short:   "Manage custom fields",
	GroupID: "schema",
}

var fieldCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a custom field",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fieldType, _ := cmd.Flags().GetString("type")
		description, _ := cmd.Flags().GetString("description")
		options, _ := cmd.Flags().GetStringSlice("option")
		required, _ := cmd.Flags().GetBool("required")
		linkType, _ := cmd.Flags().GetString("links")
		onTypes, _ := cmd.Flags().GetStringSlice("on")

		resourceTypes := make([]model.ResourceType, 0, len(onTypes))
		for _, rt := range onTypes {
			resourceTypes = append(resourceTypes, model.ResourceType(rt))
		}

		field, err := api.CreateField(context.Background(), schema.FieldInput{
			Name:          args[0],
			Description:   description,
			Type:          model.FieldType(fieldType),
			ResourceType:  model.ResourceType(linkType),
			Options:       options,
			IsRequired:    required,
			ResourceTypes: resourceTypes,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(field)
			return nil
		}
		fmt.Printf("created field %s\n", field.ID)
		return nil
	},
}

var fieldShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a field",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		field, err := api.GetField(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(field)
			return nil
		}
		printField(field)
		return nil
	},
}

var fieldRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[1]
		field, err := api.UpdateField(context.Background(), args[0], schema.FieldUpdate{Name: &name})
		if err != nil {
			return err
		}
		fmt.Printf("field %s renamed to %q\n", field.ID, field.Name)
		return nil
	},
}

var fieldDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a custom field and its stored values",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.DeleteField(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted field %s\n", args[0])
		return nil
	},
}

func init() {
	fieldCreateCmd.Flags().StringP("type", "t", "text", "field type (text, number, money, date, select, ...)")
	fieldCreateCmd.Flags().String("description", "", "field description")
	fieldCreateCmd.Flags().StringSlice("option", nil, "option label for select fields (repeatable)")
	fieldCreateCmd.Flags().Bool("required", false, "mark the field required")
	fieldCreateCmd.Flags().String("links", "", "linked resource type for resource fields")
	fieldCreateCmd.Flags().StringSlice("on", nil, "resource types to attach the field to (repeatable)")

	fieldCmd.AddCommand(fieldCreateCmd)
	fieldCmd.AddCommand(fieldShowCmd)
	fieldCmd.AddCommand(fieldRenameCmd)
	fieldCmd.AddCommand(fieldDeleteCmd)
}
