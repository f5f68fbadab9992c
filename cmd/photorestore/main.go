package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/revivelabs/photorestore/internal/analytics"
	"github.com/revivelabs/photorestore/internal/api"
	"github.com/revivelabs/photorestore/internal/config"
	"github.com/revivelabs/photorestore/internal/devices"
	"github.com/revivelabs/photorestore/internal/enhance"
	"github.com/revivelabs/photorestore/internal/export"
	"github.com/revivelabs/photorestore/internal/flow"
	"github.com/revivelabs/photorestore/internal/identity"
	"github.com/revivelabs/photorestore/internal/models"
	"github.com/revivelabs/photorestore/internal/userstate"
	"github.com/revivelabs/photorestore/pkg/logger"
)

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	store, err := identity.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("secure store: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg, logr)
	sink := analytics.NewHTTPSink(client, logr, func(ctx context.Context) (string, error) {
		id, _, err := store.Get(ctx, identity.KeyUserID)
		return id, err
	}, cfg.Platform, cfg.AppVersion)

	uploader, err := export.NewShareUploader(cfg)
	if err != nil {
		log.Fatalf("share uploader: %v", err)
	}

	app := &app{
		cfg:      cfg,
		log:      logr,
		store:    store,
		client:   client,
		devices:  devices.NewClient(cfg, logr),
		users:    userstate.NewProvider(client, logr, cfg.FreeDailyLimit),
		sink:     sink,
		exporter: export.NewExporter(client, uploader, cfg.OutputDir, logr),
	}

	if err := app.run(ctx, args[0], args[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: photorestore <command> [flags]

Commands:
  enhance        restore a photo (one-shot wizard)
  edit           apply a free-form edit described in plain words
  balance        show credits and remaining free enhancements
  restore        re-fetch the account, optionally submitting store receipts
  history        list past enhancements
  save           download an enhanced image into the output directory
  share          publish an enhanced image to the share bucket
  link           start linking this device to an email address
  verify         finish linking with the emailed code
  devices        list devices linked to the account email
  remove-device  unlink another device
  reset          clear onboarding and linking state on this device

Run "photorestore <command> -h" for command flags.
`)
}

type app struct {
	cfg      config.Config
	log      *slog.Logger
	store    *identity.Store
	client   *api.Client
	devices  *devices.Client
	users    *userstate.Provider
	sink     analytics.Sink
	exporter *export.Exporter
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "enhance":
		return a.runEnhance(ctx, args)
	case "edit":
		return a.runEdit(ctx, args)
	case "balance":
		return a.runBalance(ctx)
	case "restore":
		return a.runRestore(ctx, args)
	case "history":
		return a.runHistory(ctx)
	case "save":
		return a.runSave(ctx, args)
	case "share":
		return a.runShare(ctx, args)
	case "link":
		return a.runLink(ctx, args)
	case "verify":
		return a.runVerify(ctx, args)
	case "devices":
		return a.runDevices(ctx, args)
	case "remove-device":
		return a.runRemoveDevice(ctx, args)
	case "reset":
		return a.runReset(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// bootstrap returns the persisted user id, creating it on first run, and
// fires the one-time onboarding event.
func (a *app) bootstrap(ctx context.Context) (string, error) {
	userID, err := a.store.EnsureUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("bootstrap identity: %w", err)
	}
	if _, seen, err := a.store.Get(ctx, identity.KeyHasSeenOnboarding); err == nil && !seen {
		a.sink.Track(ctx, "onboarding_completed", map[string]any{"platform": a.cfg.Platform})
		if err := a.store.Set(ctx, identity.KeyHasSeenOnboarding, "true"); err != nil {
			a.log.Warn("could not persist onboarding flag", "err", err)
		}
	}
	return userID, nil
}

func (a *app) runEnhance(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	photo := fs.String("photo", "", "path to the photo to restore (required)")
	mode := fs.String("mode", string(models.ModeEnhance), fmt.Sprintf("enhancement mode, one of %v", models.Modes))
	resolution := fs.String("resolution", string(models.ResolutionStandard), "output resolution: standard or hd")
	quality := fs.Float64("quality", -1, "quality level in [0,1]; negative means server default")
	save := fs.Bool("save", false, "save the result into the output directory")
	share := fs.Bool("share", false, "publish the result to the share bucket")
	fs.Parse(args)

	if *photo == "" {
		fs.Usage()
		return errors.New("-photo is required")
	}

	userID, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	if err := a.users.Refresh(ctx, userID); err != nil {
		return err
	}

	coordinator := flow.NewCoordinator()
	if err := coordinator.SetSelectedPhoto(*photo); err != nil {
		return err
	}
	a.sink.Track(ctx, "photo_selected", map[string]any{"source": "cli"})

	if err := coordinator.SetSelectedMode(models.Mode(*mode)); err != nil {
		return err
	}
	a.sink.Track(ctx, "mode_selected", map[string]any{"mode": *mode})

	settings := models.ProcessingSettings{Resolution: models.Resolution(*resolution)}
	if *quality >= 0 {
		settings.QualityLevel = *quality
	}
	if err := coordinator.SetProcessingSettings(settings); err != nil {
		return err
	}

	orchestrator := enhance.NewOrchestrator(a.client, a.users, coordinator, a.sink, a.log)
	result, err := orchestrator.Process(ctx, userID)
	if err != nil {
		if errors.Is(err, enhance.ErrCreditsRequired) {
			return fmt.Errorf("%w (run \"photorestore balance\" to check your credits)", err)
		}
		return err
	}

	fmt.Printf("enhanced: %s\n", result.EnhancedURI)
	fmt.Printf("id: %s  processing: %.1fs", result.EnhancementID, result.ProcessingTime)
	if result.Watermark {
		fmt.Print("  (watermarked)")
	}
	fmt.Println()
	if snapshot, ok := a.users.Snapshot(); ok {
		fmt.Printf("credits: %d standard, %d hd\n", snapshot.StandardCredits, snapshot.HDCredits)
	}

	if *save {
		dest, err := a.exporter.SaveToDevice(ctx, result.EnhancedURI)
		if err != nil {
			return err
		}
		a.sink.Track(ctx, "image_saved", map[string]any{"mode": *mode})
		fmt.Printf("saved: %s\n", dest)
	}
	if *share {
		url, err := a.exporter.Share(ctx, result.EnhancedURI)
		if err != nil {
			return err
		}
		a.sink.Track(ctx, "image_shared", map[string]any{"mode": *mode})
		fmt.Printf("share link: %s\n", url)
	}
	return nil
}

func (a *app) runEdit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	photo := fs.String("photo", "", "path to the photo to edit (required)")
	description := fs.String("description", "", "what to change, in plain words (required)")
	resolution := fs.String("resolution", string(models.ResolutionStandard), "output resolution: standard or hd")
	save := fs.Bool("save", false, "save the result into the output directory")
	fs.Parse(args)

	if *photo == "" || *description == "" {
		fs.Usage()
		return errors.New("-photo and -description are required")
	}
	res := models.Resolution(*resolution)
	if !res.Valid() {
		return fmt.Errorf("invalid resolution %q", *resolution)
	}

	userID, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	if err := a.users.Refresh(ctx, userID); err != nil {
		return err
	}
	snapshot, _ := a.users.Snapshot()
	if !snapshot.CanEnhance(res) {
		return fmt.Errorf("%w (run \"photorestore balance\" to check your credits)", enhance.ErrCreditsRequired)
	}

	result, err := a.client.CustomEdit(ctx, api.CustomEditRequest{
		UserID:          userID,
		FilePath:        *photo,
		EditDescription: *description,
		Resolution:      res,
	})
	if err != nil {
		a.sink.Track(ctx, "custom_edit_failed", map[string]any{"resolution": *resolution, "error": err.Error()})
		return err
	}
	a.users.ApplyCreditUpdate(result.Credits)
	a.sink.Track(ctx, "custom_edit_completed", map[string]any{"resolution": *resolution})

	fmt.Printf("edited: %s\n", result.EnhancedURL)
	if result.Watermark {
		fmt.Println("(watermarked)")
	}
	if *save {
		dest, err := a.exporter.SaveToDevice(ctx, result.EnhancedURL)
		if err != nil {
			return err
		}
		fmt.Printf("saved: %s\n", dest)
	}
	return nil
}

func (a *app) runBalance(ctx context.Context) error {
	userID, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	if err := a.users.Refresh(ctx, userID); err != nil {
		return err
	}
	snapshot, _ := a.users.Snapshot()

	fmt.Printf("user: %s\n", snapshot.UserID)
	fmt.Printf("credits: %d standard, %d hd\n", snapshot.StandardCredits, snapshot.HDCredits)
	fmt.Printf("free today: %d standard, %d hd\n", snapshot.RemainingTodayStandard, snapshot.RemainingTodayHD)
	if snapshot.SubscriptionType != "" {
		fmt.Printf("subscription: %s", snapshot.SubscriptionType)
		if snapshot.SubscriptionExpires != nil {
			fmt.Printf(" (expires %s)", snapshot.SubscriptionExpires.Format("2006-01-02"))
		}
		fmt.Println()
	}
	return nil
}

func (a *app) runRestore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	fs.Parse(args)

	userID, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	// Positional arguments are store receipts to submit for restoration.
	profile, err := a.client.Restore(ctx, userID, fs.Args())
	if err != nil {
		return err
	}

	fmt.Printf("restored account %s\n", userID)
	fmt.Printf("credits: %d standard, %d hd\n", profile.StandardCredits, profile.HDCredits)
	if profile.SubscriptionType != "" {
		fmt.Printf("subscription: %s\n", profile.SubscriptionType)
	}
	return nil
}

func (a *app) runHistory(ctx context.Context) error {
	userID, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	history, err := a.client.ListEnhancements(ctx, userID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no enhancements yet")
		return nil
	}
	for _, entry := range history {
		marker := ""
		if entry.Watermark {
			marker = "  (watermarked)"
		}
		fmt.Printf("%s  %-11s %-8s %s%s\n",
			entry.CreatedAt.Format("2006-01-02 15:04"), entry.Mode, entry.Resolution, entry.EnhancedURL, marker)
	}
	return nil
}

func (a *app) runSave(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: photorestore save <image-url>")
	}
	dest, err := a.exporter.SaveToDevice(ctx, args[0])
	if err != nil {
		return err
	}
	a.sink.Track(ctx, "image_saved", map[string]any{"source": "history"})
	fmt.Printf("saved: %s\n", dest)
	return nil
}

func (a *app) runShare(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: photorestore share <image-url>")
	}
	url, err := a.exporter.Share(ctx, args[0])
	if err != nil {
		if errors.Is(err, export.ErrShareNotConfigured) {
			return errors.New("sharing is not configured; set the SHARE_S3_* variables")
		}
		return err
	}
	a.sink.Track(ctx, "image_shared", map[string]any{"source": "history"})
	fmt.Printf("share link: %s\n", url)
	return nil
}

func (a *app) runLink(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	email := fs.String("email", "", "email address to link this device to (required)")
	fs.Parse(args)
	if *email == "" {
		fs.Usage()
		return errors.New("-email is required")
	}

	deviceID, err := a.store.EnsureDeviceID(ctx)
	if err != nil {
		return err
	}
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "photorestore"
	}

	info, err := a.devices.SendVerification(ctx, *email, deviceID, hostname, a.cfg.Platform)
	if err != nil {
		return err
	}
	if info.LinkedEmail != "" && info.LinkedEmail != *email {
		return fmt.Errorf("this device is already linked to %s; unlink it first", info.LinkedEmail)
	}
	fmt.Printf("verification code sent to %s (valid %d minutes)\n", *email, info.ExpiresInMinutes)
	fmt.Println("finish with: photorestore verify -email", *email, "-code <code>")
	return nil
}

func (a *app) runVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	email := fs.String("email", "", "email address the code was sent to (required)")
	code := fs.String("code", "", "verification code from the email (required)")
	fs.Parse(args)
	if *email == "" || *code == "" {
		fs.Usage()
		return errors.New("-email and -code are required")
	}

	deviceID, err := a.store.EnsureDeviceID(ctx)
	if err != nil {
		return err
	}
	result, err := a.devices.VerifyCode(ctx, *email, deviceID, *code, a.cfg.Platform)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("verification failed: %s", result.Message)
	}
	if err := a.store.Set(ctx, identity.KeyLinkedEmail, result.Email); err != nil {
		return fmt.Errorf("persist linked email: %w", err)
	}
	a.sink.Track(ctx, "device_linked", map[string]any{"platform": a.cfg.Platform})
	fmt.Printf("device linked to %s\n", result.Email)
	return nil
}

func (a *app) runDevices(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	email := fs.String("email", "", "account email (defaults to the linked one)")
	fs.Parse(args)

	target, err := a.linkedEmail(ctx, *email)
	if err != nil {
		return err
	}
	deviceID, err := a.store.EnsureDeviceID(ctx)
	if err != nil {
		return err
	}

	linked, err := a.devices.List(ctx, target, deviceID)
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		fmt.Printf("no devices linked to %s\n", target)
		return nil
	}
	for _, d := range linked {
		marker := " "
		if d.IsCurrent {
			marker = "*"
		}
		fmt.Printf("%s %-20s %-8s %s  (device %s)\n", marker, d.Name, d.Type, d.LastActive, d.DeviceID)
	}
	return nil
}

func (a *app) runRemoveDevice(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("remove-device", flag.ExitOnError)
	email := fs.String("email", "", "account email (defaults to the linked one)")
	target := fs.String("device", "", "device id to unlink (required)")
	fs.Parse(args)
	if *target == "" {
		fs.Usage()
		return errors.New("-device is required")
	}

	account, err := a.linkedEmail(ctx, *email)
	if err != nil {
		return err
	}
	deviceID, err := a.store.EnsureDeviceID(ctx)
	if err != nil {
		return err
	}

	result, err := a.devices.Remove(ctx, account, deviceID, *target)
	if err != nil {
		return err
	}
	fmt.Printf("removed device %s\n", result.RemovedDeviceID)
	return nil
}

func (a *app) runReset(ctx context.Context) error {
	// Identifiers survive a reset; only onboarding and linking state go.
	for _, key := range []string{
		identity.KeyHasSeenOnboarding,
		identity.KeyLinkedEmail,
		identity.KeyTrialInfo,
		identity.KeyTrialReminder,
	} {
		if err := a.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	fmt.Println("local state cleared")
	return nil
}

func (a *app) linkedEmail(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	email, ok, err := a.store.Get(ctx, identity.KeyLinkedEmail)
	if err != nil {
		return "", err
	}
	if !ok || email == "" {
		return "", errors.New("no linked email on this device; pass -email or run \"photorestore link\"")
	}
	return email, nil
}
