package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/counseld/internal/crisis"
	"github.com/fyrsmithlabs/counseld/internal/taxonomy"
)

var classifyTaxonomyPath string

var classifyCmd = &cobra.Command{
	Use:   "classify [text|-]",
	Short: "Classify a message locally",
	Long: `Classify a message against the crisis taxonomy without a running
server and print the assessment and suggested response as JSON.

Examples:
  # Classify an argument
  counseld classify "I've been feeling hopeless"

  # Classify from stdin
  echo "rough week at work" | counseld classify -

  # Use a custom taxonomy file
  counseld classify --taxonomy /etc/counseld/taxonomy.yaml "text"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyTaxonomyPath, "taxonomy", "", "path to taxonomy file (defaults to built-in)")
}

// classifyOutput is the JSON printed by the classify command.
type classifyOutput struct {
	Assessment crisis.Assessment `json:"assessment"`
	Response   *crisis.Response  `json:"response,omitempty"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	var text string
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read from stdin: %w", err)
		}
		text = string(content)
	} else {
		text = args[0]
	}

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("no text to classify")
	}

	source, err := classifySource()
	if err != nil {
		return err
	}

	classifier, err := crisis.NewClassifier(source)
	if err != nil {
		return fmt.Errorf("initialize classifier: %w", err)
	}

	out := classifyOutput{Assessment: classifier.Classify(text)}
	if out.Assessment.Level != taxonomy.TierNone {
		if resp, err := crisis.SelectResponse(out.Assessment.Level); err == nil {
			out.Response = &resp
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func classifySource() (taxonomy.Source, error) {
	if classifyTaxonomyPath == "" {
		return taxonomy.NewStatic(taxonomy.Default()), nil
	}

	tax, err := taxonomy.Load(classifyTaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy %s: %w", classifyTaxonomyPath, err)
	}
	return taxonomy.NewStatic(tax), nil
}
