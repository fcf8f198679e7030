// Package app coordinates uploads, conversions and bundles for the HTTP and
// CLI front ends.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/newthinker/dzibridge/internal/bundle"
	"github.com/newthinker/dzibridge/internal/config"
	"github.com/newthinker/dzibridge/internal/convert"
	"github.com/newthinker/dzibridge/internal/core"
	"github.com/newthinker/dzibridge/internal/dzi"
	"github.com/newthinker/dzibridge/internal/metrics"
	"github.com/newthinker/dzibridge/internal/notifier"
	"github.com/newthinker/dzibridge/internal/storage/archive"
)

// JobType identifies conversion jobs in the job store and in events.
const JobType = "conversion"

// Conversion statuses used in metrics and events.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Result summarises a finished conversion.
type Result struct {
	Name             string `json:"name"`
	DescriptorPath   string `json:"descriptor_path"`
	BasePath         string `json:"base_path"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	Levels           int    `json:"levels"`
	Tiles            int    `json:"tiles"`
	RelatedFiles     int    `json:"related_files"`
	TotalDescriptors int    `json:"total_descriptors"`
	BundleName       string `json:"bundle_name"`
	PublishedKey     string `json:"published_key,omitempty"`
	PublishedBytes   int64  `json:"published_bytes,omitempty"`
}

// Service stages uploads, runs them through the conversion bridge and builds
// bundles from the output directory.
type Service struct {
	bridge     *convert.Bridge
	outputDir  string
	stagingDir string
	allowed    map[string]struct{}
	accept     string

	publisher archive.Storage
	notifiers *notifier.Registry
	metrics   *metrics.Registry
	logger    *zap.Logger
}

// New creates a service from cfg. The output and staging directories are
// created if missing.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conv, err := convert.New(cfg.Output.TileOptions())
	if err != nil {
		return nil, err
	}

	outputDir, err := convert.EnsureOutputDir(cfg.Output.Dir)
	if err != nil {
		return nil, err
	}

	stagingDir := cfg.Upload.StagingDir
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return nil, core.WrapError(core.ErrFilesystem, fmt.Errorf("creating staging dir: %w", err))
	}

	allowed := make(map[string]struct{}, len(cfg.Upload.AllowedExtensions))
	accept := make([]string, 0, len(cfg.Upload.AllowedExtensions))
	for _, ext := range cfg.Upload.AllowedExtensions {
		ext = normalizeExt(ext)
		if _, dup := allowed[ext]; dup || ext == "" {
			continue
		}
		allowed[ext] = struct{}{}
		accept = append(accept, "."+ext)
	}

	return &Service{
		bridge:     convert.NewBridge(conv, cfg.Converter.Workers, logger),
		outputDir:  outputDir,
		stagingDir: stagingDir,
		allowed:    allowed,
		accept:     strings.Join(accept, ","),
		notifiers:  notifier.NewRegistry(),
		logger:     logger,
	}, nil
}

// SetPublisher makes the service copy every new bundle to st.
func (s *Service) SetPublisher(st archive.Storage) {
	s.publisher = st
}

// SetMetrics sets the registry conversions are recorded in.
func (s *Service) SetMetrics(reg *metrics.Registry) {
	s.metrics = reg
}

// RegisterNotifier adds a notifier that receives conversion events.
func (s *Service) RegisterNotifier(n notifier.Notifier) error {
	return s.notifiers.Register(n)
}

// Notifiers returns the names of the registered notifiers.
func (s *Service) Notifiers() []string {
	return s.notifiers.Names()
}

// OutputDir returns the absolute output directory.
func (s *Service) OutputDir() string {
	return s.outputDir
}

// Accept lists the accepted upload extensions as a file input accept
// attribute, e.g. ".jpg,.png".
func (s *Service) Accept() string {
	return s.accept
}

// Stage writes an uploaded file into the staging directory under its own
// base name and returns the staged path.
func (s *Service) Stage(name string, r io.Reader) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." || name == ".." || name == "/" || dzi.BaseName(name) == "" {
		return "", core.WrapError(core.ErrInvalidUpload, fmt.Errorf("bad file name %q", name))
	}

	ext := normalizeExt(filepath.Ext(name))
	if _, ok := s.allowed[ext]; !ok {
		return "", core.WrapError(core.ErrUnsupportedFormat, fmt.Errorf("extension %q is not accepted", ext))
	}

	path := filepath.Join(s.stagingDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", core.WrapError(core.ErrFilesystem, fmt.Errorf("staging upload: %w", err))
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", core.WrapError(core.ErrInvalidUpload, fmt.Errorf("reading upload: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", core.WrapError(core.ErrFilesystem, fmt.Errorf("staging upload: %w", err))
	}
	return path, nil
}

// Discard removes a staged file that will not be converted.
func (s *Service) Discard(staged string) {
	s.removeStaged(staged)
}

// Convert tiles the staged file and collects the counts for the result. The
// staged file is removed once the conversion has finished, whether or not
// it succeeded. If ctx ends first the wait is abandoned but the conversion
// still completes in the background.
func (s *Service) Convert(ctx context.Context, staged string) (Result, error) {
	start := time.Now()
	if s.metrics != nil {
		s.metrics.ConversionStarted()
	}

	f := s.bridge.Submit(ctx, staged, s.outputDir)
	out, err := f.Wait(ctx)

	settle := func() {
		o, e := f.Wait(context.Background())
		s.removeStaged(staged)
		s.record(o, e, time.Since(start))
	}
	select {
	case <-f.Done():
		settle()
	default:
		go settle()
	}

	name := dzi.BaseName(staged)
	if err != nil {
		s.notify(ctx, notifier.Event{Name: name, Status: StatusFailed, Error: err.Error()})
		return Result{}, err
	}

	res, err := s.collect(out)
	if err != nil {
		s.notify(ctx, notifier.Event{Name: name, Status: StatusFailed, Error: err.Error()})
		return Result{}, err
	}

	if s.publisher != nil {
		key, size, err := s.publish(ctx, out.Layout())
		if err != nil {
			s.notify(ctx, notifier.Event{Name: name, Status: StatusFailed, Error: err.Error()})
			return Result{}, err
		}
		res.PublishedKey = key
		res.PublishedBytes = size
	}

	s.logger.Info("conversion complete",
		zap.String("name", res.Name),
		zap.Int("tiles", res.Tiles),
		zap.Int("related_files", res.RelatedFiles),
		zap.Duration("duration", time.Since(start)),
	)

	s.notify(ctx, notifier.Event{
		Name:         res.Name,
		Status:       StatusComplete,
		Descriptor:   res.DescriptorPath,
		Tiles:        res.Tiles,
		RelatedFiles: res.RelatedFiles,
		BundleName:   res.BundleName,
		PublishedKey: res.PublishedKey,
	})
	return res, nil
}

// Descriptors returns how many descriptors the output directory holds.
func (s *Service) Descriptors() (int, error) {
	return bundle.CountDescriptors(s.outputDir)
}

// Bundle builds the archive for the output called name.
func (s *Service) Bundle(name string) (*bytes.Reader, error) {
	if !validName(name) {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("invalid name %q", name))
	}

	base := filepath.Join(s.outputDir, name)
	if !bundle.Exists(base) {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("no output named %q", name))
	}

	rdr, err := bundle.Build(base)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordBundle(rdr.Size())
	}
	s.logger.Debug("bundle built", zap.String("name", name), zap.String("size", humanize.Bytes(uint64(rdr.Size()))))
	return rdr, nil
}

// Describe reads the descriptor of the output called name.
func (s *Service) Describe(name string) (dzi.Descriptor, error) {
	if !validName(name) {
		return dzi.Descriptor{}, core.WrapError(core.ErrNotFound, fmt.Errorf("invalid name %q", name))
	}

	layout := dzi.NewLayout(s.outputDir, name)
	d, err := dzi.ReadDescriptor(layout.Descriptor())
	if errors.Is(err, fs.ErrNotExist) {
		return dzi.Descriptor{}, core.WrapError(core.ErrNotFound, fmt.Errorf("no descriptor named %q", name))
	}
	return d, err
}

// Published lists the bundle file names in the publish target.
func (s *Service) Published(ctx context.Context) ([]string, error) {
	if s.publisher == nil {
		return nil, core.WrapError(core.ErrNotFound, errors.New("publishing is disabled"))
	}

	keys, err := s.publisher.List(ctx, archive.BundlePrefix)
	if err != nil {
		return nil, core.WrapError(core.ErrPublishFailed, err)
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if name, ok := strings.CutPrefix(key, archive.BundlePrefix+"/"); ok && validName(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// PublishedBundle fetches the published bundle file called fileName.
func (s *Service) PublishedBundle(ctx context.Context, fileName string) (*bytes.Reader, error) {
	if s.publisher == nil {
		return nil, core.WrapError(core.ErrNotFound, errors.New("publishing is disabled"))
	}
	if !validName(fileName) {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("invalid name %q", fileName))
	}

	data, err := s.publisher.Get(ctx, archive.BundleKey(fileName))
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("no published bundle %q", fileName))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrPublishFailed, err)
	}
	return bytes.NewReader(data), nil
}

func (s *Service) collect(out convert.Output) (Result, error) {
	layout := out.Layout()

	related, err := bundle.CountRelated(layout.Base)
	if err != nil {
		return Result{}, err
	}
	total, err := bundle.CountDescriptors(s.outputDir)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Name:             layout.Name(),
		DescriptorPath:   out.Descriptor,
		BasePath:         layout.Base,
		Width:            out.Stats.Width,
		Height:           out.Stats.Height,
		Levels:           out.Stats.Levels,
		Tiles:            out.Stats.Tiles,
		RelatedFiles:     related,
		TotalDescriptors: total,
		BundleName:       bundle.FileName(layout.Name()),
	}, nil
}

func (s *Service) publish(ctx context.Context, layout dzi.Layout) (string, int64, error) {
	rdr, err := bundle.Build(layout.Base)
	if err != nil {
		return "", 0, core.WrapError(core.ErrPublishFailed, err)
	}

	key := archive.BundleKey(bundle.FileName(layout.Name()))
	if err := s.publisher.Put(ctx, key, rdr, rdr.Size(), bundle.ContentType); err != nil {
		return "", 0, core.WrapError(core.ErrPublishFailed, err)
	}
	if s.metrics != nil {
		s.metrics.RecordBundle(rdr.Size())
	}

	s.logger.Info("bundle published",
		zap.String("key", key),
		zap.String("size", humanize.Bytes(uint64(rdr.Size()))),
	)
	return key, rdr.Size(), nil
}

// notify fans event out to every notifier. Failures are logged only.
func (s *Service) notify(ctx context.Context, event notifier.Event) {
	if s.notifiers.Len() == 0 {
		return
	}
	event.Type = JobType
	event.FinishedAt = time.Now().UTC()

	ctx = context.WithoutCancel(ctx)
	for name, err := range s.notifiers.NotifyAll(ctx, event) {
		s.logger.Warn("notification failed",
			zap.String("notifier", name),
			zap.String("name", event.Name),
			zap.Error(core.WrapError(core.ErrNotifyFailed, err)),
		)
	}
}

func (s *Service) record(out convert.Output, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := StatusComplete
	if err != nil {
		status = StatusFailed
	}
	s.metrics.RecordConversion(status, elapsed.Seconds(), out.Stats.Tiles)
}

func (s *Service) removeStaged(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing staged upload", zap.String("path", path), zap.Error(err))
	}
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
