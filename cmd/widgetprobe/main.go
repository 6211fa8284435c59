// Command widgetprobe drives the consent widget protocol against a running
// deployment: it loads the template the way the script loader does, renders
// the banner headlessly, makes a decision and submits it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"time"

	"dpdp/internal/widget"
)

type probeConfig struct {
	Origin     string
	TemplateID string
	UserID     string
	Platform   string
	Language   string
	Decision   string
	Purposes   []string
	Retries    int
	Timeout    time.Duration
	Verbose    bool
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "probe failed:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (probeConfig, error) {
	var cfg probeConfig
	var purposes string
	fs := flag.NewFlagSet("widgetprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Origin, "origin", "http://localhost:8080", "deployment origin serving the loader")
	fs.StringVar(&cfg.TemplateID, "template", "", "template id (required)")
	fs.StringVar(&cfg.UserID, "user", "", "opaque user reference id (required)")
	fs.StringVar(&cfg.Platform, "platform", widget.DefaultPlatform, "platform reported with the consent")
	fs.StringVar(&cfg.Language, "language", widget.DefaultLanguage, "banner language")
	fs.StringVar(&cfg.Decision, "decision", "accept", "accept, reject, custom or dismiss")
	fs.StringVar(&purposes, "purposes", "", "comma separated purpose ids to enable with -decision=custom")
	fs.IntVar(&cfg.Retries, "retries", 1, "submission retries after the first attempt")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "overall deadline")
	fs.BoolVar(&cfg.Verbose, "v", false, "log protocol steps")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if cfg.TemplateID == "" || cfg.UserID == "" {
		return cfg, errors.New("-template and -user are required")
	}
	switch cfg.Decision {
	case "accept", "reject", "custom", "dismiss":
	default:
		return cfg, fmt.Errorf("unknown -decision %q", cfg.Decision)
	}
	for _, p := range strings.Split(purposes, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Purposes = append(cfg.Purposes, p)
		}
	}
	return cfg, nil
}

// probeDoc is a page that includes the loader with the probe's attributes.
type probeDoc struct {
	tag widget.ScriptTag
}

func (d probeDoc) CurrentScript() (widget.ScriptTag, bool) { return d.tag, true }
func (d probeDoc) Scripts() []widget.ScriptTag             { return []widget.ScriptTag{d.tag} }
func (d probeDoc) Location() (string, string)              { return "https:", "probe.invalid" }

// probeHost records what the loader does to the page.
type probeHost struct {
	mu     sync.Mutex
	frame  *probeFrame
	events []string
	errs   []string
}

func (h *probeHost) CreateFrame(spec widget.FrameSpec) (widget.Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = &probeFrame{src: spec.Src, visible: true}
	return h.frame, nil
}

func (h *probeHost) Dispatch(event string, detail map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	if event == widget.EventConsentError {
		if msg, ok := detail["error"].(string); ok {
			h.errs = append(h.errs, msg)
		}
	}
}

type probeFrame struct {
	mu      sync.Mutex
	src     string
	visible bool
}

func (f *probeFrame) SetSrc(src string) {
	f.mu.Lock()
	f.src = src
	f.mu.Unlock()
}

func (f *probeFrame) Show() {
	f.mu.Lock()
	f.visible = true
	f.mu.Unlock()
}

func (f *probeFrame) Hide() {
	f.mu.Lock()
	f.visible = false
	f.mu.Unlock()
}

func (f *probeFrame) Post(widget.Message, string) {}

func run(ctx context.Context, cfg probeConfig, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	client := widget.NewClient(cfg.Origin)
	host := &probeHost{}
	session := widget.NewSession(widget.Options{
		Origin:    cfg.Origin,
		PII:       widget.PIIBlock,
		Retry:     widget.RetryPolicy{Retries: cfg.Retries, Delay: time.Second},
		Templates: client,
		Consents:  client,
		Host:      host,
		Logger:    logger,
	})

	doc := probeDoc{tag: widget.ScriptTag{
		Src: strings.TrimRight(cfg.Origin, "/") + widget.ScriptPath,
		Data: map[string]string{
			"templateId": cfg.TemplateID,
			"userId":     cfg.UserID,
			"platform":   cfg.Platform,
			"language":   cfg.Language,
		},
	}}
	if err := session.Initialize(ctx, doc); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	snap := session.Snapshot()
	fmt.Fprintf(out, "template %s %q purposes=%d fallback=%v\n", snap.ID, snap.Name, len(snap.Purposes), snap.Fallback())

	// Messages from the frame arrive from the deployment origin.
	banner := widget.NewBanner(widget.PosterFunc(func(msg widget.Message, _ string) {
		session.HandleMessage(ctx, widget.MessageEvent{Origin: strings.TrimRight(cfg.Origin, "/"), Data: msg})
	}), cfg.Language, widget.BannerOptions{Logger: logger})
	banner.Load(snap)

	var postErr error
	switch cfg.Decision {
	case "accept":
		postErr = banner.AcceptAll()
	case "reject":
		postErr = banner.RejectAll()
	case "dismiss":
		postErr = banner.Dismiss()
	case "custom":
		postErr = customize(banner, cfg.Purposes)
	}
	if postErr != nil {
		return fmt.Errorf("banner: %w", postErr)
	}

	host.mu.Lock()
	events := append([]string(nil), host.events...)
	errs := append([]string(nil), host.errs...)
	host.mu.Unlock()

	fmt.Fprintf(out, "decision %s visible=%v events=%s\n", cfg.Decision, session.Visible(), strings.Join(events, ","))
	if len(errs) > 0 {
		return fmt.Errorf("consent not saved: %s", errs[len(errs)-1])
	}
	if cfg.Decision != "dismiss" && !slices.Contains(events, widget.EventConsentSaved) {
		return errors.New("consent was not acknowledged")
	}
	return nil
}

func customize(b *widget.Banner, enable []string) error {
	if err := b.Customize(); err != nil {
		return err
	}
	for _, id := range enable {
		if err := b.Toggle(id, true); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
	}
	return b.Save()
}
