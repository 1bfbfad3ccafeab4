package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fernwood/procure/internal/model"
)

var showCmd = &cobra.Command{
	Use:     "show <id | type/key>",
	Short:   "Show a resource",
	GroupID: "resources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		res, err := resolveResource(ctx, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(res)
			return nil
		}
		sch, err := api.GetSchema(ctx, res.Type)
		if err != nil {
			return err
		}
		printResource(res, sch)
		return nil
	},
}

// resolveResource accepts either a resource id ("res-...") or a "type/key"
// pair like "bill/42".
func resolveResource(ctx context.Context, ref string) (*model.Resource, error) {
	if rt, keyStr, ok := strings.Cut(ref, "/"); ok {
		key, err := strconv.ParseInt(keyStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid key %q in %q", keyStr, ref)
		}
		return api.GetResourceByKey(ctx, model.ResourceType(rt), key)
	}
	return api.GetResource(ctx, ref)
}
