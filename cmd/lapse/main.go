package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"lapse-go/internal/app"
	"lapse-go/internal/config"
	"lapse-go/internal/lapse"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := app.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a LapseApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "start", "finish").
func newApp(ctx context.Context, operation string) (*app.LapseApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewLapseApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// sessionArg parses an optional recording ID argument. Zero means the active recording.
func sessionArg(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid recording id %q", args[0])
	}
	return id, nil
}

// readPassphrase prompts on the terminal, or falls back to LAPSE_PASSPHRASE
// when stdin is not a terminal.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if p := os.Getenv("LAPSE_PASSPHRASE"); p != "" {
			return p, nil
		}
		return "", errors.New("no terminal for passphrase prompt; set LAPSE_PASSPHRASE")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(b) == 0 {
		return "", errors.New("empty passphrase")
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "lapse",
	Short:        "Record timelapses and upload them encrypted",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			if name, err = os.Hostname(); err != nil {
				return fmt.Errorf("determining hostname: %w", err)
			}
		}

		cfg := config.NewConfig(name, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device:   %s\n", name)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Printf("Spool:    %s\n", cfg.Capture.SpoolDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device:     %s\n", cfg.DeviceName)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Spool:      %s\n", cfg.Capture.SpoolDir)
		fmt.Printf("Merge:      %dms -> %dms\n", cfg.Merge.CaptureTickMs, cfg.Merge.TargetPeriodMs)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		fmt.Printf("Remote:     %s\n", cfg.Remote.Type)
		fmt.Printf("Upload:     %s\n", cfg.Upload.Type)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a new recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp(cmd.Context(), "start")
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.Start(cmd.Context(), args[0], description)
		if err != nil {
			return fmt.Errorf("starting recording: %w", err)
		}

		fmt.Printf("Recording #%d %q started\n", t.ID, t.Name)
		fmt.Printf("Write fragments to %s and run `lapse capture`\n", a.SpoolDir())
		return nil
	},
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture into the active recording until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "capture")
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.Capture(ctx)
		if err != nil {
			return fmt.Errorf("capture failed: %w", err)
		}

		fmt.Printf("Recording #%d: %d frame(s), %d chunk(s) in epoch %s\n",
			summary.TimelapseID, summary.Frames, summary.Chunks, summary.Epoch)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}
		if st == nil {
			fmt.Println("No active recording.")
			return nil
		}

		fmt.Printf("#%d  %s\n", st.Timelapse.ID, st.Timelapse.Name)
		fmt.Printf("Started: %s\n", st.Timelapse.StartedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("Chunks:  %d\n", st.Chunks)
		fmt.Printf("Epochs:  %d\n", st.Epochs)
		fmt.Printf("Frames:  %d\n", st.Frames)
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish [ID]",
	Short: "Merge, encrypt and upload a recording",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "finish")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Finish(cmd.Context(), id)
		if err != nil {
			var se *lapse.StageError
			if errors.As(err, &se) {
				return fmt.Errorf("finish failed during %s: %w", se.Stage, se.Err)
			}
			return fmt.Errorf("finish failed: %w", err)
		}

		fmt.Printf("Uploaded draft %s\n", res.DraftID)
		fmt.Printf("Video:     %d bytes, %d frame(s), %d epoch(s)\n", res.VideoSize, res.FrameCount, res.Epochs)
		fmt.Printf("Thumbnail: %d bytes\n", res.ThumbnailSize)
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard [ID]",
	Short: "Delete a recording without uploading it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := sessionArg(args)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "discard")
		if err != nil {
			return err
		}
		defer a.Close()

		discarded, err := a.Discard(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("discarding: %w", err)
		}
		fmt.Printf("Discarded recording #%d\n", discarded)
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt IN OUT",
	Short: "Decrypt an uploaded video or thumbnail",
	Long:  `Decrypt an uploaded video or thumbnail.

Videos are sealed under the draft ID. Thumbnails are sealed under
"<draft ID>/thumbnail"; pass --thumbnail with the draft ID to decrypt one.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordingID, _ := cmd.Flags().GetString("id")
		passkey, _ := cmd.Flags().GetString("passkey")
		thumbnail, _ := cmd.Flags().GetBool("thumbnail")
		if recordingID == "" {
			return errors.New("--id is required")
		}

		a, err := newApp(cmd.Context(), "decrypt")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DecryptFile(cmd.Context(), args[0], args[1], recordingID, passkey, thumbnail); err != nil {
			return fmt.Errorf("decrypting: %w", err)
		}
		if args[1] != "-" {
			fmt.Printf("Decrypted to %s\n", args[1])
		}
		return nil
	},
}

var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail IN OUT",
	Short: "Render a preview of an unencrypted video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "thumbnail")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ThumbnailFile(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("rendering thumbnail: %w", err)
		}
		return nil
	},
}

// device command
var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage this device's identity",
}

var deviceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show this device's identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		register, _ := cmd.Flags().GetBool("register")
		reveal, _ := cmd.Flags().GetBool("passkey")

		a, err := newApp(cmd.Context(), "device-show")
		if err != nil {
			return err
		}
		defer a.Close()

		var d *lapse.Device
		if register {
			d, err = a.RegisterDevice(cmd.Context())
		} else {
			d, err = a.Device(cmd.Context())
		}
		if err != nil {
			return err
		}
		if d == nil {
			fmt.Println("No device identity. Run `lapse device show --register` or finish a recording.")
			return nil
		}

		fmt.Printf("Device ID: %s\n", d.ID)
		if reveal {
			fmt.Printf("Passkey:   %s\n", d.Passkey)
		}
		return nil
	},
}

var deviceResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget this device's identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "device-reset")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.ResetDevice(cmd.Context())
		if err != nil {
			return err
		}
		if id == "" {
			fmt.Println("No device identity to reset.")
			return nil
		}
		fmt.Printf("Forgot device %s\n", id)
		return nil
	},
}

var deviceExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Export this device's identity, sealed with a passphrase",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "device-export")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ExportDevice(cmd.Context(), args[0], passphrase); err != nil {
			return fmt.Errorf("exporting device: %w", err)
		}
		if args[0] != "-" {
			fmt.Printf("Exported to %s\n", args[0])
		}
		return nil
	},
}

var deviceImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace this device's identity with an exported one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "device-import")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.ImportDevice(cmd.Context(), args[0], passphrase)
		if err != nil {
			return fmt.Errorf("importing device: %w", err)
		}
		fmt.Printf("Imported device %s\n", d.ID)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("name", "", "Device name (default: hostname)")

	// device subcommands
	deviceCmd.AddCommand(deviceShowCmd)
	deviceCmd.AddCommand(deviceResetCmd)
	deviceCmd.AddCommand(deviceExportCmd)
	deviceCmd.AddCommand(deviceImportCmd)
	deviceShowCmd.Flags().Bool("register", false, "Register with the server if no identity exists")
	deviceShowCmd.Flags().Bool("passkey", false, "Print the passkey")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().StringP("description", "d", "", "Recording description")
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(finishCmd)
	rootCmd.AddCommand(discardCmd)
	rootCmd.AddCommand(decryptCmd)
	decryptCmd.Flags().String("id", "", "Draft ID of the recording")
	decryptCmd.Flags().Bool("thumbnail", false, "IN is the draft's thumbnail, sealed under <draft ID>/thumbnail")
	decryptCmd.Flags().String("passkey", "", "Passkey (default: this device's)")
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(deviceCmd)
}
