// Package command provides CLI command definitions for DotVault.
package command

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/swapdotz/dotvault/internal/cardsim"
	"github.com/swapdotz/dotvault/internal/cli/connection"
	"github.com/swapdotz/dotvault/internal/cli/output"
	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

// maxAuthRounds bounds the mutual auth relay loop.
const maxAuthRounds = 4

// TransferCommand returns the transfer subcommand group.
func TransferCommand() *cli.Command {
	return &cli.Command{
		Name:    "transfer",
		Aliases: []string{"tx"},
		Usage:   "Manage ownership transfers",
		Subcommands: []*cli.Command{
			{
				Name:  "begin",
				Usage: "Open a transfer session for a token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token-id",
						Aliases:  []string{"t"},
						Usage:    "Token to transfer",
						Required: true,
					},
				},
				Action: transferBegin,
			},
			{
				Name:      "finalize",
				Usage:     "Finalize a transfer to a new owner",
				ArgsUsage: "SESSION_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "new-owner",
						Usage:    "New owner user ID",
						Required: true,
					},
				},
				Action: transferFinalize,
			},
			{
				Name:  "demo",
				Usage: "Run a full transfer ceremony against a simulated card",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token-id",
						Aliases:  []string{"t"},
						Usage:    "Token to transfer",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "new-owner",
						Usage:    "New owner user ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "card-key",
						Usage:    "Current card key (hex, 16 bytes)",
						Required: true,
					},
					&cli.UintFlag{
						Name:  "key-version",
						Usage: "Current card key generation",
					},
				},
				Action: transferDemo,
			},
		},
	}
}

func transferBegin(c *cli.Context) error {
	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/transfers", map[string]string{
		"token_id": c.String("token-id"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		SessionID string   `json:"session_id"`
		LeaseID   string   `json:"lease_id"`
		RecordID  string   `json:"record_id"`
		ExpiresAt int64    `json:"expires_at"`
		Commands  []string `json:"commands"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	switch output.Format(flags.Output) {
	case output.FormatJSON, output.FormatYAML:
		formatter := output.NewFormatter(output.Format(flags.Output), flags.Wide)
		return formatter.Format(os.Stdout, result)
	default:
		fmt.Printf("Transfer session opened:\n")
		fmt.Printf("  Session ID: %s\n", result.SessionID)
		fmt.Printf("  Lease ID:   %s\n", result.LeaseID)
		fmt.Printf("  Record ID:  %s\n", result.RecordID)
		fmt.Printf("  Expires:    %s\n", time.UnixMilli(result.ExpiresAt).Format(time.RFC3339))
		for _, cmd := range result.Commands {
			fmt.Printf("  Command:    %s\n", cmd)
		}
		fmt.Printf("\nRelay the commands to the card and continue with the auth endpoint.\n")
		return nil
	}
}

func transferFinalize(c *cli.Context) error {
	sessionID := c.Args().First()
	if sessionID == "" {
		return fmt.Errorf("session ID required")
	}

	client := Client(c)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Post(ctx, "/v1/transfers/"+sessionID+"/finalize", map[string]string{
		"new_owner_id": c.String("new-owner"),
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var result struct {
		TokenID       string `json:"token_id"`
		NewOwnerID    string `json:"new_owner_id"`
		KeyVersion    uint32 `json:"key_version"`
		TransferCount uint64 `json:"transfer_count"`
	}
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}

	fmt.Printf("Transfer finalized:\n")
	fmt.Printf("  Token:       %s\n", result.TokenID)
	fmt.Printf("  New owner:   %s\n", result.NewOwnerID)
	fmt.Printf("  Key version: %d\n", result.KeyVersion)
	fmt.Printf("  Transfers:   %d\n", result.TransferCount)
	return nil
}

// transferDemo drives the complete ceremony against an in-process
// simulated card: begin, mutual auth relay, key rotation, confirm,
// finalize. It exists for integration testing and live demos against
// a running server.
func transferDemo(c *cli.Context) error {
	cardKey, err := hex.DecodeString(c.String("card-key"))
	if err != nil {
		return fmt.Errorf("invalid card key: %w", err)
	}

	suites := suite.NewRegistry(suite.DefaultCMACCutover)
	keyVersion := uint32(c.Uint("key-version"))
	card := cardsim.New(suites.ForKeyVersion(keyVersion), cardKey)

	client := Client(c)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	spinner := output.NewSpinner(os.Stderr, "running transfer ceremony")
	spinner.Start()

	result, err := runDemo(ctx, client, card, c.String("token-id"), c.String("new-owner"), spinner.SetMessage)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success("transfer complete")

	fmt.Printf("  Token:       %s\n", result.TokenID)
	fmt.Printf("  New owner:   %s\n", result.NewOwnerID)
	fmt.Printf("  Key version: %d\n", result.KeyVersion)
	return nil
}

type demoResult struct {
	TokenID    string `json:"token_id"`
	NewOwnerID string `json:"new_owner_id"`
	KeyVersion uint32 `json:"key_version"`
}

func runDemo(ctx context.Context, client *connection.HTTPClient, card *cardsim.Card, tokenID, newOwner string, progress func(string)) (*demoResult, error) {
	if progress == nil {
		progress = func(string) {}
	}

	// Open the session.
	progress("opening transfer session")
	resp, err := client.Post(ctx, "/v1/transfers", map[string]string{"token_id": tokenID})
	if err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	var begun struct {
		SessionID string   `json:"session_id"`
		Commands  []string `json:"commands"`
	}
	if err := connection.ParseResponse(resp, &begun); err != nil {
		return nil, fmt.Errorf("begin transfer: %w", err)
	}
	if len(begun.Commands) == 0 {
		return nil, fmt.Errorf("begin transfer: no auth command issued")
	}

	// Relay mutual auth frames between server and card.
	progress("authenticating card")
	commands := begun.Commands
	for round := 0; round < maxAuthRounds; round++ {
		reply, err := relayAllToCard(card, commands)
		if err != nil {
			return nil, err
		}

		resp, err := client.Post(ctx, "/v1/transfers/"+begun.SessionID+"/continue-auth", map[string]string{
			"card_response": reply,
		})
		if err != nil {
			return nil, fmt.Errorf("continue auth: %w", err)
		}
		var auth struct {
			Done     bool     `json:"done"`
			Commands []string `json:"commands"`
		}
		if err := connection.ParseResponse(resp, &auth); err != nil {
			return nil, fmt.Errorf("continue auth: %w", err)
		}
		if auth.Done {
			break
		}
		commands = auth.Commands
	}
	if !card.Authenticated() {
		return nil, fmt.Errorf("card did not authenticate")
	}

	// Rotate the card key to the handover generation.
	progress("rotating card key")
	resp, err = client.Post(ctx, "/v1/transfers/"+begun.SessionID+"/rotate", map[string]string{
		"target": "mid",
	})
	if err != nil {
		return nil, fmt.Errorf("rotate key: %w", err)
	}
	var rotation struct {
		Commands    []string `json:"commands"`
		VerifyToken string   `json:"verify_token"`
		FramesHash  string   `json:"frames_hash"`
	}
	if err := connection.ParseResponse(resp, &rotation); err != nil {
		return nil, fmt.Errorf("rotate key: %w", err)
	}

	replies := make([]string, 0, len(rotation.Commands))
	for _, frame := range rotation.Commands {
		reply, err := relayToCard(card, frame)
		if err != nil {
			return nil, err
		}
		replies = append(replies, reply)
	}

	// Confirm the rotation with the card's answers; the last one
	// carries the final status word.
	resp, err = client.Post(ctx, "/v1/transfers/"+begun.SessionID+"/confirm", map[string]any{
		"verify_token": rotation.VerifyToken,
		"frames_hash":  rotation.FramesHash,
		"responses":    replies,
	})
	if err != nil {
		return nil, fmt.Errorf("confirm rotation: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return nil, fmt.Errorf("confirm rotation: %w", err)
	}

	// Finalize ownership.
	progress("finalizing ownership")
	resp, err = client.Post(ctx, "/v1/transfers/"+begun.SessionID+"/finalize", map[string]string{
		"new_owner_id": newOwner,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	var result demoResult
	if err := connection.ParseResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}
	return &result, nil
}

// relayToCard decodes a base64 frame, hands it to the card, and
// re-encodes the card's reply.
func relayToCard(card *cardsim.Card, command string) (string, error) {
	frame, err := apdu.Decode(command)
	if err != nil {
		return "", fmt.Errorf("decode card command: %w", err)
	}
	return apdu.Encode(card.Handle(frame)), nil
}

// relayAllToCard relays a batch of frames in order and returns the
// last reply.
func relayAllToCard(card *cardsim.Card, commands []string) (string, error) {
	var last string
	for _, cmd := range commands {
		reply, err := relayToCard(card, cmd)
		if err != nil {
			return "", err
		}
		last = reply
	}
	return last, nil
}
