package commands

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// ContractsCmd lists the compiled contracts
var ContractsCmd = &cobra.Command{
	Use:   "contracts",
	Short: "List the contracts of the project and their functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return contractsCommand()
	},
}

func contractsCommand() error {
	_, h, log, err := setup(-1)
	if err != nil {
		return err
	}
	defer h.Close()

	out, err := h.Compile(context.Background())
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Contract", "Source", "Init code", "Functions"})
	table.SetAutoWrapText(false)
	for _, a := range out.Artifacts {
		functions := "-"
		if iface, err := a.Interface(); err != nil {
			log.Warnf("Failed to read interface of %s: %v", a.ID(), err)
		} else {
			functions = strings.Join(iface.Signatures(), "\n")
		}
		table.Append([]string{a.Name, a.Source, strconv.Itoa(len(a.Bytecode)), functions})
	}
	table.Render()
	return nil
}
