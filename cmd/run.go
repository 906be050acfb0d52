package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"portmux/internal/api"
	"portmux/internal/arbiter"
	"portmux/internal/config"
	"portmux/internal/job"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var (
	runTemplateFlag string
	runMacroFlag    string
	runPortsFlag    []string
	runVarsFlag     []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a template or macro against serial ports",
	Long: `Runs a one-shot job from the command line: binds the named template or
macro to one or more ports with the given variables, executes it, and
prints per-target results. Exits non-zero when any target fails.

Example:
  portmux run --template vlan-setup --port ~/port1 --port ~/port2 --var vlan_id=42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runTemplateFlag == "" && runMacroFlag == "" {
			return fmt.Errorf("--template or --macro is required")
		}
		if len(runPortsFlag) == 0 {
			return fmt.Errorf("at least one --port is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg.LogLevel)

		variables := make(map[string]interface{}, len(runVarsFlag))
		for _, kv := range runVarsFlag {
			key, value, found := strings.Cut(kv, "=")
			if !found {
				return fmt.Errorf("invalid --var %q, expected key=value", kv)
			}
			variables[key] = value
		}

		manager := config.NewManager(cfg)
		if err := manager.LoadAll(); err != nil {
			return err
		}

		store := job.NewStore()
		executor := job.NewExecutor(store, arbiter.New(), manager)

		targets := make([]job.TargetSpec, 0, len(runPortsFlag))
		for _, port := range runPortsFlag {
			targets = append(targets, job.TargetSpec{Port: port, Variables: variables})
		}
		j := store.Create(runTemplateFlag, runMacroFlag, targets)

		spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		spin.Suffix = fmt.Sprintf(" Running job against %d target(s)...", len(targets))
		spin.Start()
		execErr := executor.ExecuteJob(j.ID)
		spin.Stop()

		if execErr != nil {
			return execErr
		}

		final, err := store.Get(j.ID)
		if err != nil {
			return err
		}
		printJobResult(final)

		if final.Status == api.JobStatusFailed {
			os.Exit(1)
		}
		return nil
	},
}

func printJobResult(j *api.Job) {
	fmt.Printf("Job %s: %s\n", j.ID, j.Status)
	for _, t := range j.Targets {
		fmt.Printf("\n== Target %s: %s\n", t.Port, t.Status)
		if t.FailureCategory != "" {
			fmt.Printf("   category:    %s\n", t.FailureCategory)
			fmt.Printf("   remediation: %s\n", t.Remediation)
		}
		for _, res := range t.VerificationResults {
			fmt.Printf("   check %-30s %s\n", res.CheckName, res.Status)
		}
		if t.Log != "" {
			fmt.Println("   --- log ---")
			for _, line := range strings.Split(t.Log, "\n") {
				fmt.Printf("   %s\n", line)
			}
		}
	}
}

func init() {
	runCmd.Flags().StringVar(&runTemplateFlag, "template", "", "template name to execute")
	runCmd.Flags().StringVar(&runMacroFlag, "macro", "", "macro name to execute (overrides template steps)")
	runCmd.Flags().StringArrayVar(&runPortsFlag, "port", nil, "target port path (repeatable)")
	runCmd.Flags().StringArrayVar(&runVarsFlag, "var", nil, "target variable key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}
