package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fernwood/procure/internal/model"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// renderValue formats one value for table output, preferring the linked
// resource's name over its opaque id.
func renderValue(f *model.Field, rf *model.ResourceField) string {
	v := rf.Value
	switch {
	case v.IsEmpty():
		return ""
	case v.String != nil:
		return *v.String
	case v.Number != nil:
		return strconv.FormatFloat(*v.Number, 'f', -1, 64)
	case v.Boolean != nil:
		return strconv.FormatBool(*v.Boolean)
	case v.Date != nil:
		return v.Date.Format("2006-01-02")
	case v.Option != nil:
		if f != nil {
			if opt := f.OptionByID(*v.Option); opt != nil {
				return opt.Label
			}
		}
		return *v.Option
	case v.Options != nil:
		labels := make([]string, 0, len(v.Options))
		for _, id := range v.Options {
			label := id
			if f != nil {
				if opt := f.OptionByID(id); opt != nil {
					label = opt.Label
				}
			}
			labels = append(labels, label)
		}
		return strings.Join(labels, ", ")
	case v.Resource != nil:
		if rf.LinkedName != "" {
			return fmt.Sprintf("%s (%s)", rf.LinkedName, *v.Resource)
		}
		return *v.Resource
	case v.User != nil:
		return *v.User
	case v.Contact != nil:
		return *v.Contact
	case v.File != nil:
		return *v.File
	case v.Files != nil:
		return strings.Join(v.Files, ", ")
	}
	return ""
}

// printResource renders a resource with field names resolved from its schema.
func printResource(res *model.Resource, sch *model.Schema) {
	fmt.Printf("ID:      %s\n", res.ID)
	fmt.Printf("Type:    %s\n", res.Type)
	fmt.Printf("Key:     %d\n", res.Key)
	fmt.Printf("Created: %s\n", res.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, rf := range res.Fields {
		var field *model.Field
		for _, f := range sch.AllFields {
			if f.ID == rf.FieldID {
				field = f
				break
			}
		}
		name := rf.FieldID
		if field != nil {
			name = field.Name
		}
		if s := renderValue(field, rf); s != "" {
			fmt.Fprintf(w, "%s:\t%s\n", name, s)
		}
	}
	w.Flush()

	if len(res.Costs) > 0 {
		fmt.Println("\nCosts:")
		cw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(cw, "  ID\tNAME\tVALUE")
		for _, c := range res.Costs {
			value := strconv.FormatFloat(c.Value, 'f', -1, 64)
			if c.IsPercentage {
				value += "%"
			}
			fmt.Fprintf(cw, "  %s\t%s\t%s\n", c.ID, c.Name, value)
		}
		cw.Flush()
	}
}

// printResourceList renders one row per resource, with a column per
// displayable schema field (capped to keep rows readable).
func printResourceList(resources []*model.Resource, sch *model.Schema) {
	const maxColumns = 5

	fields := make([]*model.Field, 0, maxColumns)
	for _, f := range sch.AllFields {
		if len(fields) == maxColumns {
			break
		}
		fields = append(fields, f)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := "ID\tKEY"
	for _, f := range fields {
		header += "\t" + strings.ToUpper(f.Name)
	}
	fmt.Fprintln(w, header)

	for _, res := range resources {
		row := fmt.Sprintf("%s\t%d", res.ID, res.Key)
		for _, f := range fields {
			cell := ""
			if rf := res.FieldByID(f.ID); rf != nil {
				cell = renderValue(f, rf)
				if len(cell) > 30 {
					cell = cell[:27] + "..."
				}
			}
			row += "\t" + cell
		}
		fmt.Fprintln(w, row)
	}
	w.Flush()
	fmt.Printf("\n%d resources\n", len(resources))
}

func printField(f *model.Field) {
	fmt.Printf("ID:       %s\n", f.ID)
	fmt.Printf("Name:     %s\n", f.Name)
	fmt.Printf("Type:     %s\n", f.Type)
	if f.Description != "" {
		fmt.Printf("Desc:     %s\n", f.Description)
	}
	if f.ResourceType != "" {
		fmt.Printf("Links:    %s\n", f.ResourceType)
	}
	fmt.Printf("System:   %t\n", f.IsSystem)
	fmt.Printf("Required: %t\n", f.IsRequired)
	if len(f.Options) > 0 {
		fmt.Println("Options:")
		for _, opt := range f.Options {
			fmt.Printf("  %s  %s\n", opt.ID, opt.Label)
		}
	}
}

func printSchema(sch *model.Schema) {
	for _, sec := range sch.Sections {
		fmt.Printf("%s\n", sec.Name)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, f := range sec.Fields {
			flags := string(f.Type)
			if f.IsSystem {
				flags += ", system"
			}
			if f.IsRequired {
				flags += ", required"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", f.ID, f.Name, flags)
		}
		w.Flush()
		fmt.Println()
	}
}
