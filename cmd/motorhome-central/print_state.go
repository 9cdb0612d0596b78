package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antural/motorhome-central/internal/state"
)

var printStateURL string

var printStateCmd = &cobra.Command{
	Use:   "print-state",
	Short: "Print relay and sensor state of a running controller and exit",
	Long: `Query a running controller over HTTP and print every relay state and the
current sensor readings. The controller owns the GPIO lines, so state is read
through its API rather than from the pins.`,
	Example: `  motorhome-central print-state
  motorhome-central print-state --url http://motorhome.local`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		return printState(cmd.OutOrStdout(), client, printStateURL)
	},
}

func init() {
	printStateCmd.Flags().StringVar(&printStateURL, "url", "http://localhost", "Base URL of the controller")
}

func printState(w io.Writer, client *http.Client, base string) error {
	base = strings.TrimSuffix(base, "/")

	var relays state.RelayStatesJSON
	if err := getJSON(client, base+"/api/relays", &relays); err != nil {
		return err
	}
	var sensors state.SensorsJSON
	if err := getJSON(client, base+"/api/sensors", &sensors); err != nil {
		return err
	}

	keys := make([]string, 0, len(relays))
	for k := range relays {
		keys = append(keys, k)
	}
	// ch2 before ch10
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(keys[i], "ch"))
		b, _ := strconv.Atoi(strings.TrimPrefix(keys[j], "ch"))
		return a < b
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", strings.ToUpper(k), relays[k])
	}
	fmt.Fprintln(w, strings.Join(parts, ", "))
	fmt.Fprintf(w, "TEMP: %s C, PRESSURE: %s hPa, ALTITUDE: %s m, EXTERIOR: %s C\n",
		sensors.TempInt, sensors.Presion, sensors.Altitud, sensors.TempExt)
	return nil
}

func getJSON(client *http.Client, url string, v interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("query controller: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query %s: unexpected status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
