// Command opstoken mints a platform access token for an external scheduler or operator.
//
//	JWT_SECRET=... opstoken --operator cron-prod --role scheduler --ttl 720h
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"callsync/internal/auth"
	"callsync/internal/config"
	"callsync/internal/rbac"
)

func main() {
	cmd := &cli.Command{
		Name:  "opstoken",
		Usage: "Mint a bearer token for the call sync job endpoints",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "operator",
				Usage:    "operator or service id (token subject)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "role",
				Usage: "scheduler, operator or super_admin",
				Value: rbac.RoleScheduler,
			},
			&cli.StringFlag{
				Name:  "ttl",
				Usage: "token lifetime, e.g. 24h",
				Value: "24h",
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			return mint(c.String("operator"), c.String("role"), c.String("ttl"))
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mint(operatorID, role, ttlRaw string) error {
	switch role {
	case rbac.RoleScheduler, rbac.RoleOperator, rbac.RoleSuperAdmin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	ttl, err := time.ParseDuration(ttlRaw)
	if err != nil || ttl <= 0 {
		return fmt.Errorf("invalid ttl %q", ttlRaw)
	}

	authCfg, err := config.LoadAuth()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	m, err := auth.NewManager(authCfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// Platform tokens never carry a tenant; tenant-scoped tokens are refused by the job endpoints.
	tok, err := m.Issue(time.Now(), operatorID, "", role, ttl)
	if err != nil {
		return fmt.Errorf("issue: %w", err)
	}
	fmt.Println(tok)
	return nil
}
