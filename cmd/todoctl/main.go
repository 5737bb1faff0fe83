// Package main is the command-line client for the todo list API.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/todolist-api/internal/client"
	"github.com/vyrodovalexey/todolist-api/internal/handler"
	"github.com/vyrodovalexey/todolist-api/internal/model"
	"github.com/vyrodovalexey/todolist-api/internal/tui"
)

const (
	appName = "todoctl"

	// EnvServer overrides the default server URL.
	EnvServer = "TODOCTL_SERVER"

	defaultServer = "http://localhost:8080"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
	idColor      = color.New(color.FgCyan)
	mutedColor   = color.New(color.FgHiBlack)
	headerColor  = color.New(color.Bold)
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "✖ %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Manage todo items on a todo list API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&server, "server", "s", serverDefault(),
		"Todo list API base URL (env "+EnvServer+")")

	newClient := func() (*client.Client, error) {
		return client.New(server)
	}

	cmd.AddCommand(
		listCmd(newClient),
		getCmd(newClient),
		addCmd(newClient),
		completeCmd(newClient),
		deleteCmd(newClient),
		uiCmd(newClient),
		versionCmd(),
	)

	return cmd
}

func serverDefault() string {
	if v := os.Getenv(EnvServer); v != "" {
		return v
	}
	return defaultServer
}

type clientFactory func() (*client.Client, error)

func listCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List incomplete todo items",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			items, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func getCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a todo item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			item, err := c.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			printItem(cmd.OutOrStdout(), item)
			return nil
		},
	}
}

func addCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "add <description>",
		Short: "Add a todo item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			item, err := c.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✔ added %s %s\n", idColor.Sprint(item.ID), item.Description)
			return nil
		},
	}
}

func completeCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "complete <id>",
		Aliases: []string{"done"},
		Short:   "Mark a todo item as completed",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			item, err := c.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := c.Complete(cmd.Context(), *item); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✔ completed %s %s\n", idColor.Sprint(item.ID), item.Description)
			return nil
		},
	}
}

func deleteCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a todo item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), id); err != nil {
				return err
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✔ deleted %s\n", idColor.Sprint(id))
			return nil
		},
	}
}

func uiCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive todo list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			events, err := c.Watch(ctx)
			if err != nil {
				mutedColor.Fprintf(cmd.ErrOrStderr(), "live updates unavailable: %v\n", err)
			}

			return tui.Run(ctx, c, events)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, handler.Version)
		},
	}
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid todo item id %q", s)
	}
	return id, nil
}

func printItems(w io.Writer, items []model.TodoItem) {
	headerColor.Fprintf(w, "Showing %d Item(s)\n", len(items))
	for _, item := range items {
		fmt.Fprintf(w, "%s  %s\n", idColor.Sprint(item.ID), item.Description)
	}
}

func printItem(w io.Writer, item *model.TodoItem) {
	status := mutedColor.Sprint("open")
	if item.IsCompleted {
		status = successColor.Sprint("completed")
	}
	fmt.Fprintf(w, "%-12s %s\n", "Id:", idColor.Sprint(item.ID))
	fmt.Fprintf(w, "%-12s %s\n", "Description:", item.Description)
	fmt.Fprintf(w, "%-12s %s\n", "Status:", status)
}
