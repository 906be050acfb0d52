package cmd

import (
	"os"
	"strconv"
	"sync"

	"portmux/internal/arbiter"
	"portmux/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Show the status of all console ports",
	Long: `Checks every configured port path: whether the device exists, whether any
process holds it open (lsof), and whether it answers a carriage-return
probe. Ports held by another process are never probed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg.LogLevel)

		ports := arbiter.New()
		statuses := make([]arbiter.PortStatus, cfg.Ports.Count)

		var wg sync.WaitGroup
		for i := 1; i <= cfg.Ports.Count; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				path := cfg.Ports.Path(id)
				baud := cfg.Settings.BaudFor(strconv.Itoa(id))
				statuses[id-1] = ports.CheckPort(id, path, baud)
			}(i)
		}
		wg.Wait()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"ID", "Path", "Connected", "Locked", "Responding"})
		for _, status := range statuses {
			t.AppendRow(table.Row{
				status.ID,
				status.Path,
				yesNo(status.Connected),
				yesNo(status.Locked),
				yesNo(status.Responding),
			})
		}
		t.Render()
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
