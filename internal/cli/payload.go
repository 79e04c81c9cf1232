package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/ciload/internal/webhook"
)

var payloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Print generated webhook payloads",
	Long: `Print pull_request payloads exactly as the webhook profile sends them,
one JSON document per line.

Examples:
  ciload payload -n 5 --seed 42
  ciload payload -n 100 --field repository.full_name
  ciload payload --schema`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		seed, _ := cmd.Flags().GetInt64("seed")
		validate, _ := cmd.Flags().GetBool("validate")
		field, _ := cmd.Flags().GetString("field")
		schema, _ := cmd.Flags().GetBool("schema")

		if schema {
			_, err := cmd.OutOrStdout().Write(append(webhook.Schema(), '\n'))
			return err
		}
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return printPayloads(cmd.OutOrStdout(), payloadOptions{
			Count:    count,
			Seed:     seed,
			Validate: validate,
			Field:    field,
		})
	},
}

type payloadOptions struct {
	Count    int
	Seed     int64
	Validate bool

	// Field prints only the value at this gjson path.
	Field string
}

func printPayloads(w io.Writer, opts payloadOptions) error {
	if opts.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	for i := 0; i < opts.Count; i++ {
		data, err := json.Marshal(webhook.NewPayload(rng))
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}

		if opts.Validate {
			if err := webhook.Validate(data); err != nil {
				return fmt.Errorf("payload %d does not match schema: %w", i+1, err)
			}
		}

		line := string(data)
		if opts.Field != "" {
			if line, err = webhook.Field(data, opts.Field); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	payloadCmd.Flags().IntP("count", "n", 1, "Number of payloads to print")
	payloadCmd.Flags().Int64("seed", 0, "Random seed (default: time-based)")
	payloadCmd.Flags().Bool("validate", false, "Check every payload against the embedded schema")
	payloadCmd.Flags().String("field", "", "Print only this field (gjson path, e.g. repository.full_name)")
	payloadCmd.Flags().Bool("schema", false, "Print the payload JSON schema and exit")
}
