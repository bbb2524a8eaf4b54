package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/itemassert/pkg/schema"
)

var (
	binaryProperty string
	binaryData     string
	binaryFile     string
	binaryMetadata []string
)

var binaryCmd = &cobra.Command{
	Use:   "binary [items.json]",
	Short: "Check an item attachment's payload and metadata",
	Long: `Checks that every item carries the named attachment with the expected
payload, then compares the given metadata fields in order.

The payload is given as base64 with --data or as a file with --file.
Metadata fields are name=value pairs; a bare name places no constraint.

Examples:
  itemassert binary --file logo.png --metadata mimeType=image/png items.json
  itemassert binary --property invoice --data aGVsbG8= items.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBinary,
}

func init() {
	f := binaryCmd.Flags()
	f.StringVarP(&binaryProperty, "property", "p", schema.DefaultBinaryProperty, "attachment name")
	f.StringVar(&binaryData, "data", "", "expected payload, base64 encoded")
	f.StringVarP(&binaryFile, "file", "f", "", "file holding the expected payload")
	f.StringArrayVarP(&binaryMetadata, "metadata", "m", nil, "expected metadata field as name=value (repeatable)")
	binaryCmd.MarkFlagsMutuallyExclusive("data", "file")
	binaryCmd.MarkFlagsOneRequired("data", "file")
	rootCmd.AddCommand(binaryCmd)
}

func runBinary(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}

	data := binaryData
	if binaryFile != "" {
		payload, err := os.ReadFile(binaryFile)
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		data = base64.StdEncoding.EncodeToString(payload)
	}

	items, err := a.loadItems(cmd, inputPath(args))
	if err != nil {
		return err
	}

	params := map[string]any{
		"binaryPropertyName": binaryProperty,
		"data":               data,
	}
	if len(binaryMetadata) > 0 {
		params["metadata"] = metadataPairs(binaryMetadata)
	}
	return a.runAction(cmd, "assert.binary", params, items)
}

// metadataPairs turns name=value flags into the ordered {name, value} form.
func metadataPairs(flags []string) []any {
	out := make([]any, 0, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		entry := map[string]any{"name": name}
		if ok {
			entry["value"] = value
		}
		out = append(out, entry)
	}
	return out
}
