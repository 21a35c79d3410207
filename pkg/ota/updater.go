// Package ota checks for, downloads, and stages firmware updates.
//
// An update server publishes a small JSON manifest:
//
//	{"version": "1.4.2", "url": "https://host/fw-1.4.2.bin", "sha256": "..."}
//
// The updater polls the manifest, compares the advertised version against
// the running one, downloads newer firmware to a staging file in the data
// directory, verifies its checksum, and hands the staged file to an Applier.
// The default applier atomically renames the staged file over the install
// path; the restart that activates it is requested through a callback so
// the orchestrator keeps control of when the device goes down.
package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/version"
)

var (
	// ErrInvalidConfig indicates the updater configuration is unusable.
	ErrInvalidConfig = errors.New("ota: invalid configuration")

	// ErrUpToDate indicates the manifest does not advertise a newer
	// version than the running one.
	ErrUpToDate = errors.New("ota: firmware up to date")

	// ErrBadManifest indicates the manifest is malformed or incomplete.
	ErrBadManifest = errors.New("ota: invalid manifest")

	// ErrChecksumMismatch indicates the downloaded image does not match
	// the manifest checksum.
	ErrChecksumMismatch = errors.New("ota: checksum mismatch")
)

const (
	// DefaultPollInterval is how often Run re-checks the manifest.
	DefaultPollInterval = 6 * time.Hour

	// DefaultRequestTimeout bounds a single manifest fetch. Image
	// downloads get 10x this.
	DefaultRequestTimeout = 30 * time.Second
)

// Manifest describes the firmware an update server currently offers.
type Manifest struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	SHA256  string `json:"sha256"`
}

func (m *Manifest) validate() error {
	if m.Version == "" || m.URL == "" || m.SHA256 == "" {
		return fmt.Errorf("%w: version, url and sha256 are required", ErrBadManifest)
	}
	if len(m.SHA256) != sha256.Size*2 {
		return fmt.Errorf("%w: sha256 must be %d hex characters", ErrBadManifest, sha256.Size*2)
	}
	if _, err := hex.DecodeString(m.SHA256); err != nil {
		return fmt.Errorf("%w: sha256 is not hex", ErrBadManifest)
	}
	return nil
}

// Applier installs a verified staged image.
type Applier interface {
	// Apply installs the staged file. The file is verified before Apply
	// is called and may be moved or deleted by the implementation.
	Apply(stagedPath, newVersion string) error
}

// RenameApplier installs by atomically renaming the staged file over the
// install path. The running binary keeps executing; the new image takes
// over on the next start.
type RenameApplier struct {
	// InstallPath is the destination, typically the running executable.
	InstallPath string
}

// Apply implements Applier.
func (a *RenameApplier) Apply(stagedPath, newVersion string) error {
	if err := os.Chmod(stagedPath, 0o755); err != nil {
		return fmt.Errorf("marking staged image executable: %w", err)
	}
	if err := os.Rename(stagedPath, a.InstallPath); err != nil {
		return fmt.Errorf("installing %s: %w", newVersion, err)
	}
	return nil
}

// Config configures an Updater.
type Config struct {
	// ManifestURL is where the update manifest is fetched from.
	ManifestURL string

	// CurrentVersion is the running firmware version. Manifests that do
	// not advertise something strictly newer are ignored.
	CurrentVersion string

	// DataDir holds staged downloads.
	DataDir string

	// Applier installs verified images. Required.
	Applier Applier

	// Password is an optional shared secret sent as a bearer token with
	// every request.
	Password string

	// PollInterval is how often Run re-checks. Defaults to 6h.
	PollInterval time.Duration

	// RequestTimeout bounds a manifest fetch. Defaults to 30s.
	RequestTimeout time.Duration

	// HTTPClient overrides the default client. Mostly for tests.
	HTTPClient *http.Client

	// OnApplied is called after an image was installed, with the new
	// version. The receiver is expected to schedule a restart.
	OnApplied func(newVersion string)

	// Logger receives structured log output. Defaults to a discarding
	// logger when nil.
	Logger *slog.Logger
}

// Validate checks the configuration for missing fields.
func (c *Config) Validate() error {
	if c.ManifestURL == "" {
		return fmt.Errorf("%w: ManifestURL is required", ErrInvalidConfig)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: DataDir is required", ErrInvalidConfig)
	}
	if c.Applier == nil {
		return fmt.Errorf("%w: Applier is required", ErrInvalidConfig)
	}
	if _, err := version.Parse(c.CurrentVersion); err != nil {
		return fmt.Errorf("%w: CurrentVersion: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Updater polls for and installs firmware updates.
type Updater struct {
	cfg     Config
	logger  *slog.Logger
	current version.Version
}

// New creates an Updater from the given configuration.
func New(cfg Config) (*Updater, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	current, err := version.Parse(cfg.CurrentVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Updater{
		cfg:     cfg,
		logger:  cfg.Logger,
		current: current,
	}, nil
}

// Check fetches the manifest and returns it if it advertises a version
// newer than the running one. Returns ErrUpToDate otherwise.
func (u *Updater) Check(ctx context.Context) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.ManifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ota: building manifest request: %w", err)
	}
	u.authorize(req)

	resp, err := u.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ota: fetching manifest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ota: manifest fetch returned %s", resp.Status)
	}

	var manifest Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}
	if err := manifest.validate(); err != nil {
		return nil, err
	}

	offered, err := version.Parse(manifest.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}
	if !offered.NewerThan(u.current) {
		return nil, ErrUpToDate
	}

	u.logger.Info("update available",
		"current", u.current.String(),
		"offered", offered.String())
	return &manifest, nil
}

// Download fetches the manifest's image into the data directory, verifying
// its checksum on the way. Returns the staged file path.
func (u *Updater) Download(ctx context.Context, m *Manifest) (string, error) {
	if err := m.validate(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*u.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return "", fmt.Errorf("ota: building download request: %w", err)
	}
	u.authorize(req)

	resp, err := u.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ota: downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ota: image download returned %s", resp.Status)
	}

	if err := os.MkdirAll(u.cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("ota: creating data dir: %w", err)
	}

	staged := filepath.Join(u.cfg.DataDir, "update-"+m.Version+".bin")
	partial := staged + ".partial"

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("ota: creating staging file: %w", err)
	}

	hash := sha256.New()
	_, err = io.Copy(f, io.TeeReader(resp.Body, hash))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("ota: writing staging file: %w", err)
	}

	sum := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(sum, m.SHA256) {
		os.Remove(partial)
		return "", fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, sum, m.SHA256)
	}

	if err := os.Rename(partial, staged); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("ota: finalizing staging file: %w", err)
	}

	u.logger.Info("image staged", "version", m.Version, "path", staged)
	return staged, nil
}

// Apply installs a staged image and requests a restart.
func (u *Updater) Apply(stagedPath string, m *Manifest) error {
	if err := u.cfg.Applier.Apply(stagedPath, m.Version); err != nil {
		return fmt.Errorf("ota: applying %s: %w", m.Version, err)
	}
	u.logger.Info("update applied", "version", m.Version)
	if u.cfg.OnApplied != nil {
		u.cfg.OnApplied(m.Version)
	}
	return nil
}

// Update runs one full check/download/apply cycle.
// Returns ErrUpToDate when no newer firmware is offered.
func (u *Updater) Update(ctx context.Context) error {
	manifest, err := u.Check(ctx)
	if err != nil {
		return err
	}
	staged, err := u.Download(ctx, manifest)
	if err != nil {
		return err
	}
	return u.Apply(staged, manifest)
}

// Run polls for updates until the context is canceled. The first check
// happens immediately. Errors are logged and the loop continues; a
// successfully applied update ends the loop, since the restart request
// makes further polling pointless.
func (u *Updater) Run(ctx context.Context) {
	ticker := time.NewTicker(u.cfg.PollInterval)
	defer ticker.Stop()

	for {
		err := u.Update(ctx)
		switch {
		case err == nil:
			return
		case errors.Is(err, ErrUpToDate):
			u.logger.Debug("no update available", "current", u.current.String())
		case errors.Is(err, context.Canceled):
			return
		default:
			u.logger.Warn("update cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (u *Updater) authorize(req *http.Request) {
	if u.cfg.Password != "" {
		req.Header.Set("Authorization", "Bearer "+u.cfg.Password)
	}
}
