package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	grpcapi "github.com/arkilian/catalogmeta/internal/api/grpc"
	"github.com/arkilian/catalogmeta/internal/catalogs"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// registryFromConfig builds the kind registry with the overrides of the
// optional config file.
func registryFromConfig(configFile string) (*catalogs.Registry, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.KindOverrides()
	if err != nil {
		return nil, err
	}
	return catalogs.Builtin(overrides)
}

func kindsCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "kinds",
		Short: "List the catalog and table kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := registryFromConfig(configFile)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tENTITY\tSTRICT\tDESCRIPTION")
			for _, name := range registry.Names() {
				k, err := registry.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", k.Name, k.Entity, k.Schema.Strict(), k.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file with kind overrides")
	return cmd
}

func propertiesCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "properties <kind>",
		Short: "Show the caller-visible property declarations of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := registryFromConfig(configFile)
			if err != nil {
				return err
			}
			k, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tFLAGS\tDEFAULT\tDESCRIPTION")
			for _, d := range k.Schema.Visible() {
				var flags []string
				if d.IsRequired() {
					flags = append(flags, "required")
				}
				if d.IsImmutable() {
					flags = append(flags, "immutable")
				}
				if d.IsReserved() {
					flags = append(flags, "reserved")
				}
				def, _ := d.EncodedDefault()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.Name(), d.TypeName(), strings.Join(flags, ","), def, d.Description())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file with kind overrides")
	return cmd
}

func validateCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate <kind> [key=value...]",
		Short: "Validate properties for a new entity without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			registry, err := registryFromConfig(configFile)
			if err != nil {
				return err
			}
			k, err := registry.Get(args[0])
			if err != nil {
				return err
			}
			normalized, err := k.Schema.ValidateForCreate(props)
			if err != nil {
				return err
			}
			native, err := k.ToBackend(normalized)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "# caller view")
			printProperties(out, k.Schema.Display(normalized))
			fmt.Fprintln(out, "# backend view")
			printProperties(out, native)
			return nil
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "Path to configuration file with kind overrides")
	return cmd
}

// remoteFlags are shared by the commands that talk to a running server.
type remoteFlags struct {
	addr    string
	timeout time.Duration
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "localhost:9090", "gRPC address of the catalogmeta server")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "Request timeout")
}

// call dials the server and runs fn within the request timeout.
func (f *remoteFlags) call(cmd *cobra.Command, fn func(context.Context, *grpcapi.Client) error) error {
	conn, err := grpc.NewClient(f.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", f.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()
	return fn(ctx, grpcapi.NewClient(conn))
}

func (f *remoteFlags) run(cmd *cobra.Command, call func(context.Context, *grpcapi.Client) (map[string]string, error)) error {
	return f.call(cmd, func(ctx context.Context, c *grpcapi.Client) error {
		props, err := call(ctx, c)
		if err != nil {
			return err
		}
		printProperties(cmd.OutOrStdout(), props)
		return nil
	})
}

func createCmd() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "create <kind> <entity> [key=value...]",
		Short: "Create an entity on a running server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			return remote.run(cmd, func(ctx context.Context, c *grpcapi.Client) (map[string]string, error) {
				return c.Create(ctx, args[0], args[1], props)
			})
		},
	}
	remote.register(cmd)
	return cmd
}

func alterCmd() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "alter <kind> <entity> key=value...",
		Short: "Change properties of an entity on a running server",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseAssignments(args[2:])
			if err != nil {
				return err
			}
			return remote.run(cmd, func(ctx context.Context, c *grpcapi.Client) (map[string]string, error) {
				return c.Alter(ctx, args[0], args[1], changes)
			})
		},
	}
	remote.register(cmd)
	return cmd
}

func describeCmd() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "describe <kind> <entity>",
		Short: "Show the properties of an entity on a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote.run(cmd, func(ctx context.Context, c *grpcapi.Client) (map[string]string, error) {
				return c.Describe(ctx, args[0], args[1])
			})
		},
	}
	remote.register(cmd)
	return cmd
}

func historyCmd() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "history <kind> <entity>",
		Short: "Show every recorded property set of an entity, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote.call(cmd, func(ctx context.Context, c *grpcapi.Client) error {
				revisions, err := c.History(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				for i, props := range revisions {
					fmt.Fprintf(cmd.OutOrStdout(), "# revision %d\n", i+1)
					printProperties(cmd.OutOrStdout(), props)
				}
				return nil
			})
		},
	}
	remote.register(cmd)
	return cmd
}

func entitiesCmd() *cobra.Command {
	var remote remoteFlags
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "List the entities stored on a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return remote.call(cmd, func(ctx context.Context, c *grpcapi.Client) error {
				names, err := c.ListEntities(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
	remote.register(cmd)
	return cmd
}

// parseAssignments turns key=value arguments into a property map.
func parseAssignments(args []string) (map[string]string, error) {
	props := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid property %q, expected key=value", arg)
		}
		props[key] = value
	}
	return props, nil
}

func printProperties(w io.Writer, props map[string]string) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s=%s\n", k, props[k])
	}
}
