package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucci-labs/luccibot/pkg/app"
	"github.com/lucci-labs/luccibot/pkg/config"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List the skills available under the skills directory",
	Args:  cobra.NoArgs,
	RunE:  listSkills,
}

func listSkills(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnvOverrides()
	if err != nil {
		return err
	}
	path, err := resolveConfigPath(env)
	if err != nil {
		return err
	}

	catalog, err := app.OpenCatalog(skillsDir, filepath.Dir(path))
	if err != nil {
		return err
	}
	skills, err := catalog.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(skills) == 0 {
		fmt.Fprintf(out, "No skills found in %s\n", catalog.Dir())
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tRUNS WITH\tTIMEOUT\tRUNS\tERRORS\tAVG\tDESCRIPTION")
	for _, s := range skills {
		m := catalog.Metrics(s.Name)
		interp := s.Interpreter
		if interp == "" {
			interp = "(executable)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			s.Name,
			interp,
			s.Timeout,
			m.ExecutionCount,
			m.ErrorCount,
			time.Duration(m.AvgDurationMS())*time.Millisecond,
			s.Description,
		)
	}
	return w.Flush()
}
