package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/errors"
)

// TypesCmd represents the types command
var TypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List and inspect registered entity types",
	Long: `List and inspect the entity types registered in the database.

Examples:
  eavctl types list            # All registered type codes
  eavctl types show product    # Attribute declarations for one type`,
}

var typesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered entity type codes",
	Args:  cobra.NoArgs,
	RunE:  runTypesList,
}

var typesShowCmd = &cobra.Command{
	Use:   "show TYPE",
	Short: "Show one entity type's attribute declarations",
	Args:  cobra.ExactArgs(1),
	RunE:  runTypesShow,
}

func init() {
	TypesCmd.AddCommand(typesListCmd)
	TypesCmd.AddCommand(typesShowCmd)

	typesListCmd.Flags().BoolP("json", "j", false, "Output codes as JSON")
	typesShowCmd.Flags().BoolP("json", "j", false, "Output declaration as JSON")
}

func runTypesList(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cfg)
	defer cancel()
	codes, err := newRegistry(database).Codes(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list entity types")
	}

	if shouldOutputJSON(cmd) {
		return outputJSON(codes)
	}
	if len(codes) == 0 {
		fmt.Println("No entity types registered")
		return nil
	}
	for _, code := range codes {
		fmt.Println(code)
	}
	return nil
}

func runTypesShow(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cfg)
	defer cancel()
	et, err := newRegistry(database).Get(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "unknown entity type %s", args[0])
	}

	if shouldOutputJSON(cmd) {
		return outputJSON(et)
	}

	fmt.Printf("Type:    %s\n", et.Code)
	if et.Label != "" {
		fmt.Printf("Label:   %s\n", et.Label)
	}
	fmt.Printf("Table:   %s\n", et.EntityTable)
	fmt.Println()
	fmt.Printf("%-20s %-10s %-8s %-8s %-10s %s\n", "ATTRIBUTE", "BACKEND", "REQ", "UNIQUE", "FILTER", "DEFAULT")
	for _, attr := range et.Attributes.All() {
		fmt.Printf("%-20s %-10s %-8v %-8v %-10v %s\n",
			attr.Code, attr.Backend, attr.Required, attr.Unique, attr.Filterable, attr.DefaultValue)
	}
	return nil
}
