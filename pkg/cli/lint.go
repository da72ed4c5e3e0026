package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rpa-runner/pkg/validator"
)

var lintCommand = &cli.Command{
	Name:      "lint",
	Usage:     "Check flow files without running them",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Parse flows and report steps that would fail at run time: unknown
step types, missing required parameters and invalid selectors.

Exits non-zero when a file cannot be parsed, or on any finding with --strict.`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Treat findings as errors",
		},
	},
	Action: runLint,
}

func runLint(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	out := c.App.Writer
	v := validator.New()

	var files, errs, findings int
	for _, path := range c.Args().Slice() {
		result := v.Validate(path)
		files += len(result.Files)
		for _, err := range result.Errors {
			errs++
			fmt.Fprintf(out, "%s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
		for _, f := range result.Findings {
			findings++
			fmt.Fprintf(out, "%s!%s %s\n", color(colorYellow), color(colorReset), f)
		}
	}

	fmt.Fprintf(out, "%d file(s), %d error(s), %d finding(s)\n", files, errs, findings)
	if errs > 0 || (c.Bool("strict") && findings > 0) {
		return cli.Exit("", 1)
	}
	return nil
}
