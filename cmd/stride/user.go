package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperengineering/stride/internal/config"
	"github.com/hyperengineering/stride/internal/store"
	"github.com/hyperengineering/stride/internal/types"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
)

var userJSONOutput bool

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long:  "Create users and issue API tokens without running the server.",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new user and print its API token",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserCreate,
}

func init() {
	userCmd.PersistentFlags().BoolVar(&userJSONOutput, "json", false,
		"Output in JSON format")
	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	user := types.User{
		ID:       ulid.Make().String(),
		Name:     args[0],
		APIToken: ulid.Make().String(),
	}
	if err := db.CreateUser(ctx, user); err != nil {
		return err
	}

	if userJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"id":       user.ID,
			"name":     user.Name,
			"apiToken": user.APIToken,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (id: %s)\n", user.Name, user.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "API token: %s\n", user.APIToken)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
