package cli

import (
	"github.com/spf13/cobra"
)

// statusReport is the JSON/table shape for "cryptotrader status": breaker
// trip state alongside the ServiceMonitor's last-observed reachability
// for the same exchange/AI endpoints, so an operator can tell "tripped
// because it's actually down" from "tripped on a stale breaker".
type statusReport struct {
	Breakers []breakerStatus `json:"breakers"`
}

type breakerStatus struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	Failures    int64  `json:"failures"`
	Successes   int64  `json:"successes"`
	Available   bool   `json:"available"`
	LastLatency string `json:"last_latency"`
	LastError   string `json:"last_error,omitempty"`
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show circuit breaker and exchange/AI reachability status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Breakers == nil {
				output.Info("no circuit breaker registry configured")
				return nil
			}

			report := statusReport{}
			for _, stats := range app.Breakers.AllStats() {
				bs := breakerStatus{
					Name: stats.Name, State: string(stats.State),
					Failures: stats.TotalFailures, Successes: stats.TotalSuccesses,
				}
				if svc := app.Breakers.Monitor().GetStatus(stats.Name); svc != nil {
					bs.Available = svc.Available
					bs.LastLatency = svc.Latency.String()
					if svc.LastError != nil {
						bs.LastError = svc.LastError.Error()
					}
				}
				report.Breakers = append(report.Breakers, bs)
			}

			if output.IsJSON() {
				return output.JSON(report)
			}

			if len(report.Breakers) == 0 {
				output.Info("no circuit breakers have been used yet")
				return nil
			}
			for _, bs := range report.Breakers {
				line := "%-24s state=%-10s available=%-5v failures=%d successes=%d latency=%s"
				if bs.Available {
					output.Success(line, bs.Name, bs.State, bs.Available, bs.Failures, bs.Successes, bs.LastLatency)
				} else {
					output.Warn(line, bs.Name, bs.State, bs.Available, bs.Failures, bs.Successes, bs.LastLatency)
				}
			}
			return nil
		},
	}
}
