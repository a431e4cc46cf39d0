// Package discovery finds the sites to monitor: every immediate
// subdirectory of a base directory whose env file declares a domain.
package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// ErrBaseDir marks a failure to list the base directory. It fails the
// whole cycle; everything below it only skips one site.
var ErrBaseDir = errors.New("read base directory")

var errNoDeclaration = errors.New("no domain declaration")

type Scanner struct {
	Logger    *zap.Logger
	BaseDir   string
	EnvFile   string
	DomainKey string

	exclude map[string]struct{}
}

func NewScanner(logger *zap.Logger, baseDir string, exclude []string, envFile, domainKey string) *Scanner {
	if envFile == "" {
		envFile = ".env"
	}
	if domainKey == "" {
		domainKey = "DOMAIN_NAME"
	}
	ex := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		ex[name] = struct{}{}
	}
	return &Scanner{
		Logger:    logger,
		BaseDir:   baseDir,
		EnvFile:   envFile,
		DomainKey: domainKey,
		exclude:   ex,
	}
}

// Excluded returns the exclusion set, sorted.
func (s *Scanner) Excluded() []string {
	out := make([]string, 0, len(s.exclude))
	for name := range s.exclude {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Discover lists the sites under BaseDir in directory-name order.
func (s *Scanner) Discover(ctx context.Context) ([]domain.Site, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBaseDir, s.BaseDir, err)
	}

	var (
		sites   []domain.Site
		skipped error
	)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if _, ok := s.exclude[name]; ok {
			s.Logger.Debug("discovery_excluded", zap.String("directory", name))
			continue
		}
		dir := filepath.Join(s.BaseDir, name)
		if !isDir(dir, e) {
			continue
		}

		d, err := s.readDomain(dir)
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, errNoDeclaration):
			s.Logger.Debug("discovery_skip", zap.String("directory", name), zap.String("reason", err.Error()))
			continue
		case err != nil:
			s.Logger.Warn("discovery_skip", zap.String("directory", name), zap.Error(err))
			skipped = multierr.Append(skipped, fmt.Errorf("%s: %w", name, err))
			continue
		}

		sites = append(sites, domain.Site{ID: name, Domain: d})
		s.Logger.Debug("discovery_found", zap.String("directory", name), zap.String("domain", d))
	}

	if skipped != nil {
		s.Logger.Warn("discovery_errors",
			zap.Int("count", len(multierr.Errors(skipped))),
			zap.Error(skipped),
		)
	}
	s.Logger.Info("discovery_done", zap.String("base_dir", s.BaseDir), zap.Int("sites", len(sites)))
	return sites, nil
}

func (s *Scanner) readDomain(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, s.EnvFile))
	if err != nil {
		return "", err
	}
	raw, ok := parseDeclaration(data, s.DomainKey)
	if !ok {
		return "", errNoDeclaration
	}
	d := NormalizeDomain(raw)
	if d == "" {
		return "", errNoDeclaration
	}
	return d, nil
}

func isDir(path string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// parseDeclaration returns the raw value of the first KEY=value line.
func parseDeclaration(data []byte, key string) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(k) != key {
			continue
		}
		v = strings.TrimSpace(v)
		if !isQuoted(v) {
			if i := strings.Index(v, " #"); i >= 0 {
				v = v[:i]
			}
		}
		return v, true
	}
	return "", false
}

// NormalizeDomain reduces a declared value to a bare host: whitespace and
// quotes trimmed, http(s) scheme and trailing slashes removed.
func NormalizeDomain(raw string) string {
	d := strings.TrimSpace(raw)
	if isQuoted(d) {
		d = strings.TrimSpace(d[1 : len(d)-1])
	}
	lower := strings.ToLower(d)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, scheme) {
			d = d[len(scheme):]
			break
		}
	}
	d = strings.TrimRight(d, "/")
	return strings.TrimSpace(d)
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	q := s[0]
	return (q == '"' || q == '\'') && s[len(s)-1] == q
}
