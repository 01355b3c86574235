package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/saylee206/AWS-API/internal/config"
	"github.com/saylee206/AWS-API/internal/connector"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var flagConfig string

var rootCmd = &cobra.Command{
	Use:   "connector",
	Short: "Read-only AWS asset inventory API with CSV exports.",
	Long: "Inventories EC2 instances and their installed software through the\n" +
		"EC2 and SSM APIs, serves the results over HTTP, and writes timestamped\n" +
		"CSV exports.",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the connector in the foreground.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connector.New(resolveConfigPath(), version)
		if err != nil {
			return err
		}
		return c.Run()
	},
}

var exportKind string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run a single export and print the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connector.New(resolveConfigPath(), version)
		if err != nil {
			return err
		}
		defer c.Shutdown()

		result, err := c.Export(context.Background(), exportKind)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the connector version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var serviceCmd = &cobra.Command{
	Use:       "service [install|uninstall|start|stop|run]",
	Short:     "Manage the connector as a system service.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"install", "uninstall", "start", "stop", "run"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServiceAction(args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		fmt.Sprintf("path to config file (default %s when present)", config.GetDefaultConfigPath()))
	exportCmd.Flags().StringVar(&exportKind, "kind", "all", "export kind: hardware, software, or all")
	rootCmd.AddCommand(serveCmd, exportCmd, serviceCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfigPath prefers the explicit flag, then the platform default
// path when the file exists, then built-in defaults.
func resolveConfigPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	def := config.GetDefaultConfigPath()
	if _, err := os.Stat(def); err == nil {
		return def
	}
	return ""
}

// program adapts the connector to the service manager interface.
type program struct {
	configPath string
	conn       *connector.Connector
}

func (p *program) Start(s service.Service) error {
	c, err := connector.New(p.configPath, version)
	if err != nil {
		return err
	}
	p.conn = c
	go p.conn.Run()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.conn != nil {
		return p.conn.Shutdown()
	}
	return nil
}

func runServiceAction(action string) error {
	defaults := config.GetPlatformDefaults()

	// The unit always points at an explicit config path so the service
	// does not depend on its working directory.
	configPath := flagConfig
	if configPath == "" {
		configPath = defaults.ConfigPath
	}

	svcConfig := &service.Config{
		Name:             "aws-inventory-connector",
		DisplayName:      "AWS Inventory Connector",
		Description:      "Read-only AWS asset inventory API with CSV exports.",
		Arguments:        []string{"service", "run", "--config", configPath},
		WorkingDirectory: defaults.WorkingDirectory,
	}

	prg := &program{configPath: configPath}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	switch action {
	case "install":
		if err := svc.Install(); err != nil {
			return fmt.Errorf("installing service: %w", err)
		}
		fmt.Println("Service installed")
	case "uninstall":
		if err := svc.Uninstall(); err != nil {
			return fmt.Errorf("uninstalling service: %w", err)
		}
		fmt.Println("Service uninstalled")
	case "start":
		if err := svc.Start(); err != nil {
			return fmt.Errorf("starting service: %w", err)
		}
		fmt.Println("Service started")
	case "stop":
		if err := svc.Stop(); err != nil {
			return fmt.Errorf("stopping service: %w", err)
		}
		fmt.Println("Service stopped")
	case "run":
		return svc.Run()
	default:
		return fmt.Errorf("unknown service action %q", action)
	}
	return nil
}
