package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/sftpgate/internal/api"
	"gitlab.bluewillows.net/root/sftpgate/internal/config"
	"gitlab.bluewillows.net/root/sftpgate/internal/health"
	"gitlab.bluewillows.net/root/sftpgate/internal/metrics"
	"gitlab.bluewillows.net/root/sftpgate/pkg/transfer"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "sftpgate",
		Short:         "Per-request SFTP operations gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"path to a YAML or TOML config file (default $SFTPGATE_CONFIG)")

	cmd.AddCommand(
		newServeCommand(opts),
		newExecCommand(opts),
		newCheckCommand(opts),
		newVersionCommand(opts),
	)
	return cmd
}

// load reads configuration and builds the logger and profile registry.
func (o *rootOptions) load(logOut io.Writer) (*config.Config, *slog.Logger, io.Closer, *transfer.Registry, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, closer, err := setupLogger(cfg.Global, logOut)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		closer.Close()
		return nil, nil, nil, nil, err
	}
	return cfg, logger, closer, registry, nil
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve SFTP requests over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger, closer, registry, err := opts.load(opts.stdout)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	metrics.SetBuildInfo(Version, runtime.Version())

	logger.Info("sftpgate starting",
		slog.String("version", Version),
		slog.String("build_date", BuildDate),
		slog.String("go_version", runtime.Version()),
		slog.String("config", cfg.Path),
		slog.Int("profiles", registry.Len()),
	)

	if invalid := registry.Invalid(); len(invalid) > 0 {
		for _, p := range invalid {
			logger.Error("invalid profile",
				slog.String("profile", p.Name()),
				slog.String("error", p.Err().Error()),
			)
		}
		if cfg.Global.FailOnInvalidProfile {
			return fmt.Errorf("%d invalid profile(s); set fail_on_invalid_profile=false to start anyway", len(invalid))
		}
	}
	for _, p := range registry.Profiles() {
		if p.Valid() && !p.VerifiesHostKey() {
			logger.Warn("profile does not verify the server host key", slog.String("profile", p.Name()))
		}
	}

	handler := transfer.NewHandler(registry,
		transfer.WithLogger(logger),
		transfer.WithObserver(metrics.NewRecorder()),
	)

	checks := health.New(health.WithLogger(logger))
	checks.RegisterProfiles(registry)

	server := api.New(handler,
		api.WithLogger(logger),
		api.WithChecks(checks),
		api.WithMaxRequestBytes(cfg.Global.MaxRequestBytes),
	)

	l, err := net.Listen("tcp", cfg.Global.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Global.ListenAddress, err)
	}

	if err := server.Serve(ctx, l, cfg.Global.ShutdownTimeout); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("sftpgate shutdown complete")
	return nil
}

// execOptions holds the flags of the exec command.
type execOptions struct {
	profile     string
	operation   string
	payload     string
	payloadJSON string
	request     transfer.Request
}

func newExecCommand(root *rootOptions) *cobra.Command {
	opts := &execOptions{}

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run one SFTP request and print the response as JSON",
		Example: `  sftpgate exec --profile nas --operation list --payload /backups
  sftpgate exec --operation put --payload-json '{"localfile":"./report.csv","remotefolder":"/in"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExec(cmd.Context(), root, opts, cmd.Flags().Changed("payload"))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", "profile name (optional when only one is configured)")
	f.StringVarP(&opts.operation, "operation", "o", "", "operation: "+operationNames())
	f.StringVar(&opts.payload, "payload", "", "remote path payload")
	f.StringVar(&opts.payloadJSON, "payload-json", "", "payload as JSON (string, byte array, Buffer or object)")
	f.StringVar(&opts.request.ID, "id", "", "request id (generated when empty)")
	f.StringVar(&opts.request.Host, "host", "", "override the profile host")
	f.IntVar(&opts.request.Port, "port", 0, "override the profile port")
	f.StringVar(&opts.request.User, "user", "", "override the profile username")
	f.StringVar(&opts.request.Password, "password", "", "override the profile password")
	f.StringVar(&opts.request.Workdir, "workdir", "", "remote working directory")
	f.StringVar(&opts.request.Filename, "filename", "", "remote file name")
	f.StringVar(&opts.request.LocalFilename, "local-filename", "", "local file to upload")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-json")

	return cmd
}

func runExec(ctx context.Context, root *rootOptions, opts *execOptions, hasPayload bool) error {
	_, logger, closer, registry, err := root.load(root.stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	req := opts.request
	req.Operation = opts.operation
	switch {
	case opts.payloadJSON != "":
		if err := json.Unmarshal([]byte(opts.payloadJSON), &req.Payload); err != nil {
			return fmt.Errorf("parsing --payload-json: %w", err)
		}
	case hasPayload:
		req.Payload = transfer.StringPayload(opts.payload)
	}

	handler := transfer.NewHandler(registry, transfer.WithLogger(logger))
	resp := handler.Handle(ctx, opts.profile, req)

	enc := json.NewEncoder(root.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	if resp.Failed() {
		return &exitError{code: 1}
	}
	return nil
}

func operationNames() string {
	names := make([]string, 0, len(transfer.Operations))
	for _, op := range transfer.Operations {
		names = append(names, string(op))
	}
	return strings.Join(names, ", ")
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and every profile",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, _, closer, registry, err := root.load(io.Discard)
			if err != nil {
				return err
			}
			defer closer.Close()

			return printProfileStatus(root.stdout, registry)
		},
	}
}

// printProfileStatus writes one line per profile and fails when any
// profile is invalid.
func printProfileStatus(w io.Writer, registry *transfer.Registry) error {
	if registry.Len() == 0 {
		fmt.Fprintln(w, "no profiles configured")
		return errors.New("no profiles configured")
	}

	for _, p := range registry.Profiles() {
		addr := net.JoinHostPort(p.Host(), fmt.Sprint(p.Port()))
		switch {
		case !p.Valid():
			fmt.Fprintf(w, "%s\t%s\tinvalid: %v\n", p.Name(), addr, p.Err())
		case !p.VerifiesHostKey():
			fmt.Fprintf(w, "%s\t%s\tok (host key not verified)\n", p.Name(), addr)
		default:
			fmt.Fprintf(w, "%s\t%s\tok\n", p.Name(), addr)
		}
	}

	if n := len(registry.Invalid()); n > 0 {
		return fmt.Errorf("%d invalid profile(s)", n)
	}
	return nil
}

func newVersionCommand(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			if asJSON {
				enc := json.NewEncoder(root.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
				})
			}
			_, err := fmt.Fprintf(root.stdout, "sftpgate version=%s build_date=%s go=%s\n",
				Version, BuildDate, runtime.Version())
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version as JSON")
	return cmd
}
