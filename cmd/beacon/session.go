package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/beacon/internal/config"
	"github.com/fyrsmithlabs/beacon/pkg/device"
	"github.com/fyrsmithlabs/beacon/pkg/session"
)

// sessionInfo is printed by the session command.
type sessionInfo struct {
	Session struct {
		ID          string    `json:"id"`
		StartedAt   time.Time `json:"started_at"`
		Timeout     string    `json:"timeout"`
		MaxLifetime string    `json:"max_lifetime"`
	} `json:"session"`
	Device map[string]string `json:"device"`
}

func newSessionCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Start a session and print it with the device attributes",
		Long: `Start a session with the configured rotation settings and print it
together with the device resource attributes that would be attached to
exported telemetry.

The device id is read from, or created in, ~/.config/beacon/device_id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithFile(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			stateDir, err := device.DefaultStateDir()
			if err != nil {
				return err
			}
			identity := device.NewHostIdentity(stateDir)
			if err := identity.Err(); err != nil {
				cmd.PrintErrf("warning: device id not persisted: %v\n", err)
			}

			mgr := session.NewManager(sessionConfig(cfg))
			s := mgr.Current()

			var info sessionInfo
			info.Session.ID = s.ID
			info.Session.StartedAt = s.StartedAt
			info.Session.Timeout = cfg.Session.Timeout.Duration().String()
			info.Session.MaxLifetime = cfg.Session.MaxLifetime.Duration().String()
			info.Device = map[string]string{}
			for _, kv := range device.NewResourceEnricher(identity).Attributes() {
				info.Device[string(kv.Key)] = kv.Value.Emit()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Timeout:     cfg.Session.Timeout.Duration(),
		MaxLifetime: cfg.Session.MaxLifetime.Duration(),
	}
}
