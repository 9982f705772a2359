// Package command provides CLI command definitions for DotVault.
package command

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swapdotz/dotvault/internal/cli/connection"
	"github.com/swapdotz/dotvault/internal/cli/output"
)

// APIKeyCommand returns the apikey subcommand group.
func APIKeyCommand() *cli.Command {
	return &cli.Command{
		Name:    "apikey",
		Aliases: []string{"key"},
		Usage:   "Manage API keys",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List API keys",
				Action: apikeyList,
			},
			{
				Name:      "get",
				Usage:     "Get API key details",
				ArgsUsage: "KEY_ID",
				Action:    apikeyGet,
			},
			{
				Name:  "create",
				Usage: "Create a new API key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Key name",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "user-id",
						Aliases:  []string{"u"},
						Usage:    "User the key acts as",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "role",
						Aliases:  []string{"r"},
						Usage:    "Key role (metrics, reader, operator, admin)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "description",
						Aliases: []string{"d"},
						Usage:   "Key description",
					},
					&cli.IntFlag{
						Name:  "rate-limit",
						Usage: "Rate limit (requests per second)",
					},
				},
				Action: apikeyCreate,
			},
			{
				Name:      "disable",
				Usage:     "Disable an API key",
				ArgsUsage: "KEY_ID",
				Flags:     forceFlag(),
				Action:    apikeyDisable,
			},
			{
				Name:      "enable",
				Usage:     "Re-enable a disabled API key",
				ArgsUsage: "KEY_ID",
				Action:    apikeyEnable,
			},
			{
				Name:      "rotate",
				Usage:     "Rotate an API key secret",
				ArgsUsage: "KEY_ID",
				Flags:     forceFlag(),
				Action:    apikeyRotate,
			},
			{
				Name:      "delete",
				Usage:     "Delete an API key",
				ArgsUsage: "KEY_ID",
				Flags:     forceFlag(),
				Action:    apikeyDelete,
			},
		},
	}
}

func forceFlag() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "force",
			Aliases: []string{"f"},
			Usage:   "Skip confirmation",
		},
	}
}

// confirm prompts for a y/N answer unless --force is set.
func confirm(c *cli.Context, format string, args ...any) bool {
	if c.Bool("force") {
		return true
	}
	fmt.Printf(format+" [y/N]: ", args...)
	var answer string
	fmt.Scanln(&answer)
	if !strings.EqualFold(answer, "y") {
		fmt.Println("Cancelled.")
		return false
	}
	return true
}

func apikeyList(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/keys")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Keys []struct {
			KeyID     string `json:"key_id"`
			Name      string `json:"name"`
			UserID    string `json:"user_id"`
			Role      string `json:"role"`
			Status    string `json:"status"`
			RateLimit int    `json:"rate_limit"`
		} `json:"keys"`
		Total int `json:"total"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, result.Keys)
	default:
		table := &output.Table{
			Headers: []string{"KEY ID", "NAME", "USER", "ROLE", "STATUS", "RATE LIMIT"},
		}
		for _, key := range result.Keys {
			table.AddRow(
				truncateID(key.KeyID),
				key.Name,
				key.UserID,
				key.Role,
				key.Status,
				fmt.Sprintf("%d", key.RateLimit),
			)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d keys\n", result.Total)
		return nil
	}
}

func apikeyGet(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/keys/"+keyID)
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

func apikeyCreate(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := map[string]any{
		"name":    c.String("name"),
		"user_id": c.String("user-id"),
		"role":    c.String("role"),
	}
	if desc := c.String("description"); desc != "" {
		body["description"] = desc
	}
	if limit := c.Int("rate-limit"); limit > 0 {
		body["rate_limit"] = limit
	}

	resp, err := client.Post(ctx, "/admin/v1/keys", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Key struct {
			KeyID string `json:"key_id"`
		} `json:"key"`
		Secret string `json:"secret"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("API key created:\n")
	fmt.Printf("  Key ID: %s\n", result.Key.KeyID)
	fmt.Printf("  Secret: %s\n", result.Secret)
	fmt.Printf("\nSave this secret now. It cannot be retrieved later.\n")
	fmt.Printf("Credential format: %s:%s\n", result.Key.KeyID, result.Secret)
	return nil
}

func apikeyDisable(c *cli.Context) error {
	return apikeySetStatus(c, "disabled")
}

func apikeyEnable(c *cli.Context) error {
	return apikeySetStatus(c, "active")
}

func apikeySetStatus(c *cli.Context, status string) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}

	if status == "disabled" && !confirm(c, "Disable API key '%s'?", truncateID(keyID)) {
		return nil
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/keys/"+keyID+"/status", map[string]string{
		"status": status,
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}

	fmt.Printf("API key %s is now %s.\n", truncateID(keyID), status)
	return nil
}

func apikeyRotate(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}

	if !confirm(c, "Rotate secret for API key '%s'? The old secret stops working immediately.", truncateID(keyID)) {
		return nil
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/admin/v1/keys/"+keyID+"/rotate", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		KeyID  string `json:"key_id"`
		Secret string `json:"secret"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("API key secret rotated:\n")
	fmt.Printf("  Key ID:     %s\n", result.KeyID)
	fmt.Printf("  New secret: %s\n", result.Secret)
	fmt.Printf("\nSave this secret now. It cannot be retrieved later.\n")
	return nil
}

func apikeyDelete(c *cli.Context) error {
	keyID := c.Args().First()
	if keyID == "" {
		return fmt.Errorf("key ID required")
	}

	if !confirm(c, "Delete API key '%s'?", truncateID(keyID)) {
		return nil
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Delete(ctx, "/admin/v1/keys/"+keyID)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}

	fmt.Printf("API key %s deleted.\n", truncateID(keyID))
	return nil
}
