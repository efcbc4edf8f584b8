package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/duckstack/duckstack/pkg/catalog"
	"github.com/duckstack/duckstack/pkg/config"
	"github.com/duckstack/duckstack/pkg/models"
)

func newSourcesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage registered source definitions",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath(), "path to config file")

	open := func() (*catalog.Store, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if err := ensureDir(cfg.DBPath); err != nil {
			return nil, err
		}
		return catalog.New(cfg.DBPath)
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			srcs, err := store.List(context.Background())
			if err != nil {
				return err
			}
			if len(srcs) == 0 {
				fmt.Println("No sources registered.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENDPOINT\tPATH\tTTL\tAUTH")
			for _, s := range srcs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%ds\t%s\n", s.Name, s.EndpointURL, s.ResponsePath, s.TTLSeconds, authSummary(s))
			}
			return w.Flush()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a source definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			src, err := store.Get(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("source %q: %w", args[0], err)
			}
			out, err := yaml.Marshal(src.Redacted())
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}

	var add models.SourceDefinition
	var addParams []string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register or replace a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(addParams)
			if err != nil {
				return err
			}
			add.Name = args[0]
			add.QueryParams = params

			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Upsert(context.Background(), add); err != nil {
				return err
			}
			fmt.Printf("Source %q registered.\n", add.Name)
			return nil
		},
	}
	addCmd.Flags().StringVar(&add.EndpointURL, "url", "", "endpoint URL")
	addCmd.Flags().StringArrayVarP(&addParams, "param", "p", nil, "default query parameter key=value (repeatable)")
	addCmd.Flags().StringVar(&add.AuthEnvVar, "auth-env", "", "environment variable holding the API key")
	addCmd.Flags().StringVar(&add.APIKeyParam, "key-param", "", "query parameter the API key is sent in")
	addCmd.Flags().StringVar(&add.AuthHeader, "auth-header", "", "header the API key is sent in as a bearer token")
	addCmd.Flags().StringVar(&add.ResponsePath, "path", "", "dot-separated path to the record array")
	addCmd.Flags().IntVar(&add.TTLSeconds, "ttl", 0, "cache lifetime in seconds")
	addCmd.Flags().StringVar(&add.Description, "description", "", "free-form description")
	_ = addCmd.MarkFlagRequired("url")

	removeCmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			ok, err := store.Delete(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("source %q: %w", args[0], catalog.ErrNotFound)
			}
			fmt.Printf("Source %q removed.\n", args[0])
			return nil
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register every source listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := readSourcesFile(args[0])
			if err != nil {
				return err
			}

			store, err := open()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Seed(context.Background(), srcs); err != nil {
				return err
			}
			fmt.Printf("Imported %d sources.\n", len(srcs))
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, addCmd, removeCmd, importCmd)
	return cmd
}

// readSourcesFile accepts either a bare list of definitions or a document
// with a top-level sources key.
func readSourcesFile(path string) ([]models.SourceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var list []models.SourceDefinition
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Sources []models.SourceDefinition `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	return doc.Sources, nil
}

func authSummary(s models.SourceDefinition) string {
	var parts []string
	switch {
	case s.APIKeyOverride != "":
		parts = append(parts, "inline key")
	case s.AuthEnvVar != "":
		parts = append(parts, "$"+s.AuthEnvVar)
	default:
		return "-"
	}
	switch {
	case s.APIKeyParam != "":
		parts = append(parts, "?"+s.APIKeyParam)
	case s.AuthHeader != "":
		parts = append(parts, s.AuthHeader)
	}
	return strings.Join(parts, " ")
}
