package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"toolcrib/internal/apperr"
	"toolcrib/internal/clock"
	"toolcrib/internal/models"
	"toolcrib/internal/repo"
	"toolcrib/internal/reservation"
)

var (
	toolName     string
	toolQty      int
	toolMake     string
	toolRange    string
	toolCode     string
	toolLocation string
	toolAttrs    map[string]string

	restockID    uint
	restockDelta int
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Manage tool inventory",
}

var toolAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tool to the crib",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if toolName == "" {
			return apperr.ErrInvalidArgument.WithMessage("--name is required")
		}
		if toolQty < 0 {
			return apperr.ErrInvalidQuantity.WithMessage("--quantity must not be negative")
		}
		d, err := requireDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB(d)

		attrs := datatypes.JSONMap{}
		for k, v := range toolAttrs {
			attrs[k] = v
		}
		t := &models.Tool{
			Name:               toolName,
			Quantity:           toolQty,
			Make:               toolMake,
			RangeMM:            toolRange,
			IdentificationCode: toolCode,
			Location:           toolLocation,
			Attributes:         attrs,
		}
		if err := repo.NewInventoryStore(d, configFrom(cmd).Locks.Timeout).CreateTool(cmd.Context(), t); err != nil {
			return err
		}
		return output(cmd, t, fmt.Sprintf("added tool %s (id=%d, quantity=%d)", t.Name, t.ID, t.Quantity))
	},
}

var toolRestockCmd = &cobra.Command{
	Use:   "restock",
	Short: "Increase the stock of a tool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		d, err := requireDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB(d)

		inv := repo.NewInventoryStore(d, configFrom(cmd).Locks.Timeout)
		t, err := reservation.NewController(inv, clock.System{}, nil).Restock(cmd.Context(), restockID, restockDelta)
		if err != nil {
			return err
		}
		return output(cmd, t, fmt.Sprintf("tool %s now has %d", t.Name, t.Quantity))
	},
}

func init() {
	toolAddCmd.Flags().StringVar(&toolName, "name", "", "tool name")
	toolAddCmd.Flags().IntVar(&toolQty, "quantity", 0, "units in stock")
	toolAddCmd.Flags().StringVar(&toolMake, "make", "", "manufacturer")
	toolAddCmd.Flags().StringVar(&toolRange, "range", "", "measuring range, mm")
	toolAddCmd.Flags().StringVar(&toolCode, "code", "", "identification code")
	toolAddCmd.Flags().StringVar(&toolLocation, "location", "", "shelf / cabinet")
	toolAddCmd.Flags().StringToStringVar(&toolAttrs, "attr", nil, "extra attributes key=value")

	toolRestockCmd.Flags().UintVar(&restockID, "id", 0, "tool id")
	toolRestockCmd.Flags().IntVar(&restockDelta, "delta", 0, "units to add")
	_ = toolRestockCmd.MarkFlagRequired("id")
	_ = toolRestockCmd.MarkFlagRequired("delta")

	toolCmd.AddCommand(toolAddCmd, toolRestockCmd)
	rootCmd.AddCommand(toolCmd)
}
