package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fernwood/procure/internal/resource"
)

var costCmd = &cobra.Command{
	Use:     "cost",
	Short:   "Manage itemized costs on a resource",
	GroupID: "resources",
}

var costAddCmd = &cobra.Command{
	Use:   "add <id | type/key> <name> <value>",
	Short: "Add an itemized cost",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		res, err := resolveResource(ctx, args[0])
		if err != nil {
			return err
		}
		var value float64
		if _, err := fmt.Sscanf(args[2], "%f", &value); err != nil {
			return fmt.Errorf("invalid value %q", args[2])
		}
		percentage, _ := cmd.Flags().GetBool("percent")

		cost, err := api.AddCost(ctx, res.ID, resource.CostInput{
			Name:         args[1],
			IsPercentage: percentage,
			Value:        value,
		})
		if err != nil {
			return err
		}
		fmt.Printf("added cost %s\n", cost.ID)
		return nil
	},
}

var costRemoveCmd = &cobra.Command{
	Use:   "remove <id | type/key> <cost-id>",
	Short: "Remove an itemized cost",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		res, err := resolveResource(ctx, args[0])
		if err != nil {
			return err
		}
		if err := api.DeleteCost(ctx, res.ID, args[1]); err != nil {
			return err
		}
		fmt.Printf("removed cost %s\n", args[1])
		return nil
	},
}

var contactCmd = &cobra.Command{
	Use:     "contact <name>",
	Short:   "Create a contact",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		id, err := api.CreateContact(context.Background(), args[0], email)
		if err != nil {
			return err
		}
		fmt.Printf("created contact %s\n", id)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:     "upload <file>",
	Short:   "Upload a document",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		contentType, _ := cmd.Flags().GetString("content-type")

		info, err := api.UploadBlob(context.Background(), filepath.Base(path), contentType, data)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(info)
			return nil
		}
		fmt.Printf("uploaded %s (%d bytes) as %s\n", info.Name, info.Size, info.ID)
		return nil
	},
}

func init() {
	costAddCmd.Flags().Bool("percent", false, "treat value as a percentage of the subtotal")
	contactCmd.Flags().String("email", "", "contact email")
	uploadCmd.Flags().String("content-type", "", "MIME type of the file")

	costCmd.AddCommand(costAddCmd)
	costCmd.AddCommand(costRemoveCmd)
}
