package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sigbridge/internal/domain"
	"sigbridge/internal/hass"
	transport "sigbridge/internal/signal"
)

// doctorCmd probes both backends and prints what it finds. It never
// mutates anything.
func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check connectivity to the chat and automation backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			failed := false

			backend := hass.NewClient(cfg.Hass.URL, cfg.Hass.Token, logger)
			if info, err := backend.Config(ctx); err != nil {
				failed = true
				fmt.Printf("✗ automation backend (%s): %v\n", cfg.Hass.URL, err)
			} else {
				fmt.Printf("✓ automation backend: %s (version %s)\n", info.LocationName, info.Version)
			}

			if cfg.Signal.Mode == "rest" {
				chat := transport.NewRESTTransport(cfg.Signal.URL, cfg.Signal.Account, logger)
				groups, err := chat.ListGroups(ctx)
				switch {
				case err == nil:
					fmt.Printf("✓ chat backend: %d groups\n", len(groups))
				case errors.Is(err, domain.ErrUnsupported):
					fmt.Println("✓ chat backend reachable (group listing unsupported)")
				default:
					failed = true
					fmt.Printf("✗ chat backend (%s): %v\n", cfg.Signal.URL, err)
				}
			} else {
				fmt.Printf("- chat backend: socket mode, probed at bridge startup (%s)\n", cfg.Signal.URL)
			}

			if failed {
				return fmt.Errorf("one or more probes failed")
			}
			return nil
		},
	}
}
