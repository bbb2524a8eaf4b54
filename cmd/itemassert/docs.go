package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/itemassert/pkg/schema"
)

var (
	docsBody  string
	docsQuery []string
	docsURI   string
)

var docsCmd = &cobra.Command{
	Use:   "docs METHOD [RESOURCE]",
	Short: "Call the documents API",
	Long: `Sends one request to the documents API and prints the JSON response.

The access token comes from docs_token in settings.json or ITEMASSERT_DOCS_TOKEN.

Examples:
  itemassert docs GET /documents/1a2b3c
  itemassert docs POST /documents --body new-doc.json
  itemassert docs GET --uri https://docs.googleapis.com/v1/documents/1a2b3c`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDocs,
}

func init() {
	f := docsCmd.Flags()
	f.StringVarP(&docsBody, "body", "b", "", "JSON request body file")
	f.StringArrayVarP(&docsQuery, "query", "q", nil, "query parameter as key=value (repeatable)")
	f.StringVar(&docsURI, "uri", "", "absolute URL overriding base URL and resource")
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), true)
	if err != nil {
		return err
	}

	params := map[string]any{"method": strings.ToUpper(args[0])}
	if len(args) > 1 {
		params["resource"] = args[1]
	}
	if docsURI != "" {
		params["uri"] = docsURI
	}
	if docsBody != "" {
		raw, err := readInput(cmd, docsBody)
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return fmt.Errorf("body must be a JSON object: %w", err)
		}
		params["body"] = body
	}
	if len(docsQuery) > 0 {
		query := make(map[string]any, len(docsQuery))
		for _, q := range docsQuery {
			k, v, _ := strings.Cut(q, "=")
			if prev, ok := query[k]; ok {
				switch p := prev.(type) {
				case []any:
					query[k] = append(p, v)
				default:
					query[k] = []any{p, v}
				}
				continue
			}
			query[k] = v
		}
		params["query"] = query
	}

	return a.runAction(cmd, "docs.request", params, []schema.Item{schema.NewItem(nil)})
}
