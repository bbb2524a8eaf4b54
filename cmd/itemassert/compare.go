package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	compareReference   string
	compareExtraKeys   bool
	compareMissingKeys bool
	compareValues      bool
	compareSelect      string
)

var compareCmd = &cobra.Command{
	Use:   "compare [items.json]",
	Short: "Compare items against a reference JSON document",
	Long: `Compares the JSON of every item with a reference document and prints
one result per item with its missing, extra and mismatched keys.

By default extra keys and differing values are tolerated and missing keys
fail the run. Items are read from the given file, or stdin when omitted.

Examples:
  itemassert compare --reference expected.json items.json
  itemassert compare -r expected.json --extra-keys=false --select '.payload' items.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompare,
}

func init() {
	f := compareCmd.Flags()
	f.StringVarP(&compareReference, "reference", "r", "", "reference JSON document file (required)")
	f.BoolVar(&compareExtraKeys, "extra-keys", true, "tolerate keys the reference does not have")
	f.BoolVar(&compareMissingKeys, "missing-keys", false, "tolerate reference keys the item lacks")
	f.BoolVar(&compareValues, "compare-values", true, "tolerate differing values")
	f.StringVar(&compareSelect, "select", "", "jq expression picking the object to compare")
	_ = compareCmd.MarkFlagRequired("reference")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}

	ref, err := readInput(cmd, compareReference)
	if err != nil {
		return fmt.Errorf("reading reference: %w", err)
	}
	if !json.Valid(ref) {
		return fmt.Errorf("reference %s is not valid JSON", compareReference)
	}

	items, err := a.loadItems(cmd, inputPath(args))
	if err != nil {
		return err
	}

	params := map[string]any{
		"json":          string(ref),
		"extraKeys":     compareExtraKeys,
		"missingKeys":   compareMissingKeys,
		"compareValues": compareValues,
	}
	if compareSelect != "" {
		params["select"] = compareSelect
	}
	return a.runAction(cmd, "assert.compare", params, items)
}

func inputPath(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}
