// Package command provides CLI command definitions for DotVault.
package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swapdotz/dotvault/internal/cli/connection"
	"github.com/swapdotz/dotvault/internal/cli/output"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "System management commands",
		Subcommands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show server status summary",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check server health",
				Action: systemHealth,
			},
			{
				Name:   "sweep",
				Usage:  "Trigger an expired session sweep",
				Action: systemSweep,
			},
			{
				Name:  "audit",
				Usage: "Show audit log entries",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "token-id",
						Usage: "Filter by token",
					},
					&cli.StringFlag{
						Name:  "event",
						Usage: "Filter by event type",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 50,
						Usage: "Maximum entries to return",
					},
				},
				Action: systemAudit,
			},
			{
				Name:  "backup",
				Usage: "Download a full storage backup",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"F"},
						Usage:    "Output file path",
						Required: true,
					},
				},
				Action: systemBackup,
			},
		},
	}
}

func systemStatus(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/status/summary")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result map[string]any
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
	return formatter.Format(os.Stdout, result)
}

func systemHealth(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/health")
	if err != nil {
		PrintError("health check failed: %v", err)
		return fmt.Errorf("server unreachable")
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	if result.Status == "healthy" {
		fmt.Printf("✓ Server is healthy\n")
		fmt.Printf("  Target: %s\n", client.BaseURL())
	} else {
		fmt.Printf("✗ Server is unhealthy: %s\n", result.Status)
	}
	return nil
}

func systemSweep(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/sweep/trigger", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		SweptCount  int    `json:"swept_count"`
		TriggeredAt string `json:"triggered_at"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Sweep complete: %d expired sessions reclaimed.\n", result.SweptCount)
	return nil
}

func systemAudit(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path := fmt.Sprintf("/admin/v1/audit/logs?limit=%d", c.Int("limit"))
	if tokenID := c.String("token-id"); tokenID != "" {
		path += "&token_id=" + tokenID
	}
	if event := c.String("event"); event != "" {
		path += "&event=" + event
	}

	resp, err := client.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Entries []struct {
			ID      string `json:"id"`
			Event   string `json:"event"`
			TokenID string `json:"token_id"`
			UserID  string `json:"user_id"`
			At      int64  `json:"at"`
		} `json:"entries"`
		Total int `json:"total"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, result.Entries)
	default:
		table := &output.Table{
			Headers: []string{"EVENT", "TOKEN", "USER", "AT"},
		}
		for _, entry := range result.Entries {
			table.AddRow(
				entry.Event,
				truncateID(entry.TokenID),
				entry.UserID,
				time.UnixMilli(entry.At).Format("2006-01-02 15:04:05"),
			)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d entries\n", result.Total)
		return nil
	}
}

func systemBackup(c *cli.Context) error {
	path := c.String("file")

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer f.Close()

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	n, err := client.Download(ctx, "/admin/v1/backup", f)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Printf("Backup written to %s (%d bytes).\n", path, n)
	return nil
}
