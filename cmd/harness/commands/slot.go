package commands

import (
	"fmt"
	"strconv"

	"github.com/airchains-network/contract-harness/slot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// SlotCmd computes the storage slot of a mapping entry
var SlotCmd = &cobra.Command{
	Use:   "slot <base> [key...]",
	Short: "Compute the storage slot of a (nested) mapping entry",
	Long: `Compute keccak256(key . slot) for each key in turn, starting from the declared
base slot. Keys are 0x-prefixed addresses, signed integers, or otherwise
taken as strings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := resolveSlot(args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Println(s.Hex())
		return nil
	},
}

func resolveSlot(base string, keys []string) (common.Hash, error) {
	n, err := strconv.ParseUint(base, 0, 64)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid base slot %q: %w", base, err)
	}
	cur := slot.Index(n)
	for _, key := range keys {
		_, cur = slot.Key(cur, key)
	}
	return cur, nil
}
