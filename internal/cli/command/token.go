// Package command provides CLI command definitions for DotVault.
package command

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swapdotz/dotvault/internal/cli/connection"
	"github.com/swapdotz/dotvault/internal/cli/output"
	"github.com/swapdotz/dotvault/internal/core/domain"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:    "token",
		Aliases: []string{"tok"},
		Usage:   "Manage registered tokens",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List registered tokens",
				Action: tokenList,
			},
			{
				Name:      "get",
				Usage:     "Get token details",
				ArgsUsage: "TOKEN_ID",
				Action:    tokenGet,
			},
			{
				Name:  "provision",
				Usage: "Register a new physical token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "uid",
						Usage:    "Card UID (hex)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "Initial owner user ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "initial-key",
						Usage: "Factory card key (hex), omit for derived key",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Token category",
					},
					&cli.Int64Flag{
						Name:  "points",
						Usage: "Point value",
					},
				},
				Action: tokenProvision,
			},
			{
				Name:      "history",
				Usage:     "Show transfer history for a token",
				ArgsUsage: "TOKEN_ID",
				Action:    tokenHistory,
			},
			{
				Name:      "retire",
				Usage:     "Retire a token permanently",
				ArgsUsage: "TOKEN_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Skip confirmation",
					},
				},
				Action: tokenRetire,
			},
		},
	}
}

// tokenView is the summary row shown by token list.
type tokenView struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	KeyVersion    uint32 `json:"key_version"`
	Status        string `json:"status"`
	TransferCount uint64 `json:"transfer_count"`
	CreatedAt     int64  `json:"created_at" table:"wide"`
}

func tokenList(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/tokens")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Tokens []tokenView `json:"tokens"`
		Total  int         `json:"total"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, result.Tokens)
	default:
		table := &output.Table{
			Headers: []string{"TOKEN ID", "OWNER", "KEY VER", "STATUS", "TRANSFERS"},
		}
		for _, tok := range result.Tokens {
			table.AddRow(
				truncateID(tok.ID),
				tok.OwnerID,
				strconv.FormatUint(uint64(tok.KeyVersion), 10),
				tok.Status,
				strconv.FormatUint(tok.TransferCount, 10),
			)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d tokens\n", result.Total)
		return nil
	}
}

func tokenGet(c *cli.Context) error {
	tokenID := c.Args().First()
	if tokenID == "" {
		return fmt.Errorf("token ID required")
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/tokens/"+tokenID)
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

func tokenProvision(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	body := map[string]any{
		"uid":      c.String("uid"),
		"owner_id": c.String("owner"),
	}
	if key := c.String("initial-key"); key != "" {
		body["initial_key"] = key
	}

	meta := domain.Metadata{
		Name:     c.String("name"),
		Category: c.String("category"),
		Points:   c.Int64("points"),
	}
	if meta.Name != "" || meta.Category != "" || meta.Points != 0 {
		body["metadata"] = meta
	}

	resp, err := client.Post(ctx, "/v1/tokens", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		ID         string `json:"id"`
		OwnerID    string `json:"owner_id"`
		KeyVersion uint32 `json:"key_version"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Token provisioned successfully:\n")
	fmt.Printf("  Token ID:    %s\n", result.ID)
	fmt.Printf("  Owner:       %s\n", result.OwnerID)
	fmt.Printf("  Key version: %d\n", result.KeyVersion)
	return nil
}

func tokenHistory(c *cli.Context) error {
	tokenID := c.Args().First()
	if tokenID == "" {
		return fmt.Errorf("token ID required")
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Get(ctx, "/v1/tokens/"+tokenID+"/history")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		Records []struct {
			ID        string `json:"id"`
			FromOwner string `json:"from_owner"`
			ToUser    string `json:"to_user"`
			Status    string `json:"status"`
			SettledAt int64  `json:"settled_at"`
		} `json:"records"`
		Total int `json:"total"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, result.Records)
	default:
		table := &output.Table{
			Headers: []string{"RECORD ID", "FROM", "TO", "STATUS", "SETTLED"},
		}
		for _, rec := range result.Records {
			settled := "-"
			if rec.SettledAt > 0 {
				settled = time.UnixMilli(rec.SettledAt).Format("2006-01-02 15:04")
			}
			table.AddRow(truncateID(rec.ID), rec.FromOwner, rec.ToUser, rec.Status, settled)
		}
		if err := table.Render(os.Stdout); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d transfers\n", result.Total)
		return nil
	}
}

func tokenRetire(c *cli.Context) error {
	tokenID := c.Args().First()
	if tokenID == "" {
		return fmt.Errorf("token ID required")
	}

	if !c.Bool("force") {
		fmt.Printf("Retiring token '%s' is permanent. Continue? [y/N]: ", truncateID(tokenID))
		var confirm string
		fmt.Scanln(&confirm)
		if !strings.EqualFold(confirm, "y") {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/tokens/"+tokenID+"/retire", nil)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}

	fmt.Printf("Token %s retired.\n", truncateID(tokenID))
	return nil
}
