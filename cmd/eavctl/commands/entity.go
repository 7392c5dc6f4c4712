package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/andrfilipenk/new-sub004/errors"
)

// EntityCmd represents the entity command
var EntityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Inspect stored entities",
	Long: `Inspect entities stored in the engine.

Examples:
  eavctl entity show product 42    # One entity's attribute values
  eavctl entity count product      # Number of entities of one type`,
}

var entityShowCmd = &cobra.Command{
	Use:   "show TYPE ID",
	Short: "Show one entity's attribute values",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntityShow,
}

var entityCountCmd = &cobra.Command{
	Use:   "count TYPE",
	Short: "Count entities of one type",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntityCount,
}

func init() {
	EntityCmd.AddCommand(entityShowCmd)
	EntityCmd.AddCommand(entityCountCmd)

	entityShowCmd.Flags().BoolP("json", "j", false, "Output entity as JSON")
}

func runEntityShow(cmd *cobra.Command, args []string) error {
	entityID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errors.Newf("invalid entity id %q", args[1])
	}

	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cfg)
	defer cancel()
	manager := newEntityManager(database, cfg)
	entity, err := manager.Load(ctx, args[0], entityID)
	if err != nil {
		return errors.Wrapf(err, "failed to load entity %d of type %s", entityID, args[0])
	}

	if shouldOutputJSON(cmd) {
		return outputJSON(map[string]any{
			"entity_type": entity.Type.Code,
			"entity_id":   entity.EntityID,
			"created_at":  entity.CreatedAt,
			"updated_at":  entity.UpdatedAt,
			"values":      entity.Values(),
		})
	}

	fmt.Printf("Entity:  %s/%d\n", entity.Type.Code, entity.EntityID)
	fmt.Printf("Created: %s\n", entity.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated: %s\n", entity.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Println()
	for _, attr := range entity.Type.Attributes.All() {
		value, ok := entity.Get(attr.Code)
		if !ok {
			continue
		}
		fmt.Printf("%-20s %v\n", attr.Code+":", value)
	}
	return nil
}

func runEntityCount(cmd *cobra.Command, args []string) error {
	database, cfg, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := commandContext(cfg)
	defer cancel()
	count, err := newEntityManager(database, cfg).Count(ctx, args[0], nil)
	if err != nil {
		return errors.Wrapf(err, "failed to count entities of type %s", args[0])
	}
	fmt.Println(count)
	return nil
}
