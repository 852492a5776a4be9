package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	stationhttp "github.com/autopeer-io/groundlink/internal/station/server/http"
)

func newVehiclesCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List the vehicles known to a running station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			vehicles, err := fetchVehicles(ctx, server)
			if err != nil {
				return err
			}
			return printVehicles(cmd.OutOrStdout(), vehicles)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:8480", "Address of the station's status API.")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout.")
	return cmd
}

func fetchVehicles(ctx context.Context, server string) ([]stationhttp.VehicleSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/api/vehicles", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach station: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("station returned %s", resp.Status)
	}
	var out []stationhttp.VehicleSummary
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode vehicle list: %w", err)
	}
	return out, nil
}

func printVehicles(w io.Writer, vehicles []stationhttp.VehicleSummary) error {
	if len(vehicles) == 0 {
		_, err := fmt.Fprintln(w, "No vehicles connected.")
		return err
	}

	table := uitable.New()
	table.MaxColWidth = 40
	table.AddRow("", "ID", "NAME", "MODE", "ARMED", "BATTERY", "SATS", "POSITION", "MISSION")
	for _, v := range vehicles {
		active := ""
		if v.Active {
			active = "*"
		}
		battery := "-"
		if v.Remaining >= 0 {
			battery = strconv.Itoa(v.Remaining) + "%"
		}
		name := v.Name
		if v.PendingIdentity {
			name += " (identity changed)"
		}
		table.AddRow(active, v.ID, name, v.Mode, v.Armed, battery, v.Satellites,
			fmt.Sprintf("%.6f, %.6f @ %.1fm", v.Lat, v.Lon, v.Alt), v.MissionStatus)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}
