package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hmansour/chatbridge/internal/api"
	"github.com/hmansour/chatbridge/internal/app"
	"github.com/hmansour/chatbridge/internal/bot"
	"github.com/hmansour/chatbridge/internal/config"
	"github.com/hmansour/chatbridge/internal/install"
	"github.com/hmansour/chatbridge/internal/relay"
	"github.com/hmansour/chatbridge/pkg/tunnel"
	"github.com/hmansour/chatbridge/pkg/ui"
)

var version = "dev"

func main() {
	var (
		port      int
		relayAddr string
		subdomain string
		token     string
		secretDir string
	)

	cmd := &cobra.Command{
		Use:           "chatbridge",
		Short:         "Expose a local chatbot server through a tunnel, driven from a terminal control panel",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().IntVar(&port, "port", 5000, "Local port the chatbot server listens on")
	cmd.PersistentFlags().StringVar(&relayAddr, "relay", "127.0.0.1:7000", "Relay control address")
	cmd.PersistentFlags().StringVar(&subdomain, "subdomain", "", "Requested tunnel subdomain (random if empty)")
	cmd.PersistentFlags().StringVar(&token, "token", "", "Tunnel auth token (overrides secret store and environment)")
	cmd.PersistentFlags().StringVar(&secretDir, "secret-dir", config.DefaultSecretDir, "Host secret store directory")

	cobra.OnInitialize(initViper)

	resolve := func() (string, error) {
		if token == "" {
			token = viper.GetString("token")
		}
		if token != "" {
			return token, nil
		}
		return config.LoadToken(
			config.SecretMountProvider{Dir: secretDir},
			config.EnvProvider{},
		)
	}

	panelCmd := &cobra.Command{
		Use:   "panel",
		Short: "Run the control panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(resolve, relayAddr, subdomain, port)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chatbot server and tunnel without the panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolve, relayAddr, subdomain, port)
		},
	}

	var (
		controlAddr string
		publicAddr  string
		domain      string
	)
	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the tunnel relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := resolve()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			r := relay.New(relay.Config{
				ControlAddr: controlAddr,
				PublicAddr:  publicAddr,
				Domain:      domain,
				Token:       tok,
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return r.Start(ctx)
		},
	}
	relayCmd.Flags().StringVar(&controlAddr, "control", ":7000", "Control plane listen address")
	relayCmd.Flags().StringVar(&publicAddr, "public", ":8040", "Public HTTP listen address")
	relayCmd.Flags().StringVar(&domain, "domain", "relay.local", "Base domain for public URLs")

	cmd.AddCommand(panelCmd)
	cmd.AddCommand(serveCmd)
	cmd.AddCommand(relayCmd)

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("CHATBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.AddConfigPath(".")
	viper.SetConfigName("chatbridge")
	if err := viper.ReadInConfig(); err == nil {
		slog.Info("using config file", "file", viper.ConfigFileUsed())
	}
}

// buildServer wires the responder, handlers, tunnel client, and lifecycle
// manager for one local port.
func buildServer(tok, relayAddr, subdomain string, port int) (*tunnel.Client, *app.Lifecycle) {
	localAddr := fmt.Sprintf("127.0.0.1:%d", port)
	client := tunnel.NewClient(tunnel.Config{
		RelayAddr: relayAddr,
		Token:     tok,
		LocalAddr: localAddr,
		Subdomain: subdomain,
	}, slog.Default())

	handler := api.NewAPI(bot.NewDefaultResponder(), client, nil)
	lifecycle := app.NewLifecycle(localAddr, handler, app.ClientDialer{Client: client}, slog.Default())
	return client, lifecycle
}

func runPanel(resolve func() (string, error), relayAddr, subdomain string, port int) error {
	// The TUI owns stdout, so logs go to a file.
	f, _ := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}()
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))

	tok, err := resolve()
	if err != nil {
		return fmt.Errorf("cannot authenticate tunnel: %w", err)
	}

	_, lifecycle := buildServer(tok, relayAddr, subdomain, port)

	deps := ui.Deps{
		Lifecycle: lifecycle,
		Installer: install.Installer{},
		AuthCheck: func() string {
			if _, err := resolve(); err != nil {
				return fmt.Sprintf("Failed to verify tunnel credentials: %v", err)
			}
			return "Tunnel credentials OK."
		},
		Terminate: terminateSelf,
	}

	p := tea.NewProgram(ui.InitialModel(deps))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("panel error: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, resolve func() (string, error), relayAddr, subdomain string, port int) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	tok, err := resolve()
	if err != nil {
		return fmt.Errorf("cannot authenticate tunnel: %w", err)
	}

	_, lifecycle := buildServer(tok, relayAddr, subdomain, port)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	status := lifecycle.Start(ctx)
	fmt.Println(status)
	if lifecycle.State() != app.Running {
		return fmt.Errorf("%s", status)
	}

	<-ctx.Done()
	fmt.Println(lifecycle.Stop())
	return nil
}

// terminateSelf delivers SIGTERM to this process, the panel-side twin of
// the /end-session endpoint.
func terminateSelf() error {
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}
