// Command mcpflow loads a chat orchestrator configuration document, wires
// up the configured MCP servers and LLM clients, and either serves the
// chat HTTP API or inspects the resolved configuration from the CLI.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mcpflow/pkg/accesslist"
	"mcpflow/pkg/chatmsg"
	"mcpflow/pkg/chatorch"
	"mcpflow/pkg/config"
	"mcpflow/pkg/httpapi"
	"mcpflow/pkg/logging"
	"mcpflow/pkg/mcp"
	"mcpflow/pkg/modelfactory"
	"mcpflow/pkg/toolcache"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "mcpflow",
		Short: "Chat orchestrator over one or more MCP tool servers",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "mcpflow.json", "path to the configuration document")

	root.AddCommand(
		newServeCmd(&configPath),
		newServersCmd(&configPath),
		newClientsCmd(&configPath),
		newModelsCmd(&configPath),
		newToolsCmd(&configPath),
		newToolsetsCmd(&configPath),
	)
	return root
}

func loadConfig(path string) (config.Config, error) {
	return config.Load(path)
}

// newServersCmd lists configured MCP servers.
func newServersCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			names := sortedKeys(cfg.Servers)
			for _, name := range names {
				srv := cfg.Servers[name]
				kind := srv.Kind
				defer_ := ""
				if srv.DeferLoading {
					defer_ = " (defer_loading)"
				}
				fmt.Printf("%s\t%s%s\n", name, kind, defer_)
			}
			return nil
		},
	}
}

// newClientsCmd lists configured LLM clients.
func newClientsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List configured LLM clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			for _, name := range sortedKeys(cfg.Clients) {
				c := cfg.Clients[name]
				fmt.Printf("%s\t%s\t%s\n", name, c.Provider, c.BaseURL)
			}
			return nil
		},
	}
}

// newModelsCmd lists configured models.
func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			for _, name := range sortedKeys(cfg.Models) {
				m := cfg.Models[name]
				fmt.Printf("%s\tclient=%s\tmodel=%s\n", name, m.Client, m.Model)
			}
			return nil
		},
	}
}

// newToolsCmd connects to every configured server and prints its catalogue,
// in the teacher's name<TAB>description listing idiom.
func newToolsCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List every tool advertised by the configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			aggregate, err := buildAggregate(ctx, cfg)
			if err != nil {
				return err
			}
			defer aggregate.Close()

			catalogue := aggregate.Catalogue()
			if asJSON {
				data, _ := json.MarshalIndent(catalogue, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			sort.Slice(catalogue, func(i, j int) bool { return catalogue[i].Tool.Name < catalogue[j].Tool.Name })
			for _, st := range catalogue {
				fmt.Printf("%s\t[%s]\t%s\n", st.Tool.Name, st.Server, st.Tool.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalogue as JSON")
	return cmd
}

// newToolsetsCmd lists configured toolsets and exposes an interactive editor.
func newToolsetsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolsets",
		Short: "List configured toolsets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			for _, name := range sortedKeys(cfg.Toolsets) {
				ts := cfg.Toolsets[name]
				fmt.Printf("%s\t%s\tservers=%s\n", name, ts.Description, strings.Join(sortedKeys(ts.Servers), ","))
			}
			return nil
		},
	}
	cmd.AddCommand(newToolsetsEditCmd(configPath))
	return cmd
}

// newToolsetsEditCmd drives a line-oriented interactive editor over stdin,
// in the teacher's flag-then-bufio.Scanner idiom.
func newToolsetsEditCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <name>",
		Short: "Interactively edit a toolset's server/tool include-exclude spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ts, ok := cfg.Toolsets[name]
			if !ok {
				ts = chatmsg.ToolsetConfig{Servers: map[string]chatmsg.ToolSpec{}}
			}

			fmt.Printf("Editing toolset %q. Commands: add <server> [all|include <names>|exclude <names>], remove <server>, show, done\n", name)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				fields := strings.Fields(line)
				switch fields[0] {
				case "done", "exit", "quit":
					fmt.Printf("toolset %q finished (not persisted; edit %s directly to save)\n", name, *configPath)
					return nil
				case "show":
					data, _ := json.MarshalIndent(ts, "", "  ")
					fmt.Println(string(data))
				case "remove":
					if len(fields) < 2 {
						fmt.Println("usage: remove <server>")
						continue
					}
					delete(ts.Servers, fields[1])
				case "add":
					if err := applyToolsetAdd(&ts, fields[1:]); err != nil {
						fmt.Println("error:", err)
					}
				default:
					fmt.Println("unrecognized command:", fields[0])
				}
			}
			return scanner.Err()
		},
	}
}

func applyToolsetAdd(ts *chatmsg.ToolsetConfig, fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("usage: add <server> [all|include <names>|exclude <names>]")
	}
	server := fields[0]
	if ts.Servers == nil {
		ts.Servers = map[string]chatmsg.ToolSpec{}
	}
	switch fields[1] {
	case "all":
		ts.Servers[server] = chatmsg.ToolSpec{Kind: chatmsg.ToolSpecAll}
	case "include":
		ts.Servers[server] = chatmsg.ToolSpec{Kind: chatmsg.ToolSpecInclude, Names: fields[2:]}
	case "exclude":
		ts.Servers[server] = chatmsg.ToolSpec{Kind: chatmsg.ToolSpecExclude, Names: fields[2:]}
	default:
		return fmt.Errorf("unknown spec kind %q", fields[1])
	}
	return nil
}

// newServeCmd builds the chat orchestrator and serves the HTTP API.
func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	log := logging.Default()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	aggregate, err := buildAggregate(initCtx, cfg)
	cancel()
	if err != nil {
		return err
	}
	defer aggregate.Close()

	cache := toolcache.New(func(ctx context.Context) ([]chatmsg.ServerTool, error) {
		return aggregate.Catalogue(), nil
	}, cfg.ToolCacheTTL)
	cache.Prime(aggregate.Catalogue())

	resolver := modelfactory.New(cfg.Clients, cfg.Models)

	orchestrator := chatorch.New(chatorch.Config{
		Cache:         cache,
		Providers:     resolver,
		Transport:     aggregate,
		Servers:       cfg.Servers,
		Toolsets:      cfg.Toolsets,
		Discovery:     cfg.Discovery,
		MaxIterations: cfg.MaxChatIterations,
		ResultFormat:  chatorch.ResultFormat(cfg.ToolResultFormat),
	})

	access, err := accesslist.Parse(cfg.IPAllowlist)
	if err != nil {
		return fmt.Errorf("ip_allowlist: %w", err)
	}

	api := httpapi.New(orchestrator, cfg.Toolsets, access)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Handler(),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	case <-sigCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// buildAggregate connects and initializes every configured MCP server.
func buildAggregate(ctx context.Context, cfg config.Config) (*mcp.Aggregate, error) {
	aggregate := mcp.NewAggregate()
	for name, srv := range cfg.Servers {
		var conn *mcp.ServerConn
		var err error
		switch srv.Kind {
		case chatmsg.ServerKindRemote:
			conn, err = mcp.NewRemoteServerConn(ctx, name, *srv.Remote)
		default:
			conn, err = mcp.NewStdioServerConn(name, *srv.Stdio)
		}
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		if err := conn.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		aggregate.Add(conn)
	}
	return aggregate, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
