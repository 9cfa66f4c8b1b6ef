// Package archive unpacks downloaded skill bundles into an install
// directory. Bundles are adversary-controlled input, so every limit is
// enforced while streaming: a hostile archive is rejected before it can
// exhaust disk or memory, not after.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"skilldock/internal/fsutil"
)

// Extraction limits sized for ordinary bundles (a handful of Markdown and
// text files).
const (
	DefaultMaxEntries    = 2000
	DefaultMaxNameLength = 512
	DefaultMaxEntryBytes = 5 * 1024 * 1024
	DefaultMaxTotalBytes = 25 * 1024 * 1024
)

// Limits bounds a single extraction.
type Limits struct {
	MaxEntries    int
	MaxNameLength int
	MaxEntryBytes int64 // uncompressed, per entry
	MaxTotalBytes int64 // uncompressed, whole archive
}

// DefaultLimits returns the stock extraction limits.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:    DefaultMaxEntries,
		MaxNameLength: DefaultMaxNameLength,
		MaxEntryBytes: DefaultMaxEntryBytes,
		MaxTotalBytes: DefaultMaxTotalBytes,
	}
}

// SecurityError reports an archive that violated an extraction limit or
// tried to escape the target directory. An extraction that fails this way
// must never be partially trusted; the caller deletes whatever was written.
type SecurityError struct {
	Entry  string
	Reason string
}

func (e *SecurityError) Error() string {
	if e.Entry == "" {
		return "SEC_ARCHIVE: " + e.Reason
	}
	return fmt.Sprintf("SEC_ARCHIVE: entry %q: %s", e.Entry, e.Reason)
}

type Extractor struct {
	limits Limits
}

func NewExtractor(limits Limits) *Extractor {
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = DefaultMaxEntries
	}
	if limits.MaxNameLength <= 0 {
		limits.MaxNameLength = DefaultMaxNameLength
	}
	if limits.MaxEntryBytes <= 0 {
		limits.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = DefaultMaxTotalBytes
	}
	return &Extractor{limits: limits}
}

// Extract unpacks the zip stream r into targetDir, creating it if needed.
// No entry is ever written with executable permission. On any violation the
// target directory is untrusted garbage: the caller must delete it.
func (e *Extractor) Extract(r io.Reader, targetDir string) error {
	// The zip central directory lives at the end of the stream, so the
	// archive is buffered first. The compressed size is capped at the total
	// uncompressed budget: deflate never inflates by enough to matter, and
	// an archive bigger than everything it may legally contain is hostile.
	data, err := io.ReadAll(io.LimitReader(r, e.limits.MaxTotalBytes+1))
	if err != nil {
		return fmt.Errorf("EXT_READ: %w", err)
	}
	if int64(len(data)) > e.limits.MaxTotalBytes {
		return &SecurityError{Reason: fmt.Sprintf("archive exceeds %d bytes", e.limits.MaxTotalBytes)}
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return &SecurityError{Reason: "archive contains non-local entry name"}
	}
	if err != nil {
		return fmt.Errorf("EXT_FORMAT: invalid archive: %w", err)
	}

	if err := fsutil.EnsureDir(targetDir); err != nil {
		return err
	}
	base, err := filepath.Abs(targetDir)
	if err != nil {
		return err
	}

	var totalWritten int64
	entries := 0
	for _, zf := range zr.File {
		entries++
		if entries > e.limits.MaxEntries {
			return &SecurityError{Reason: fmt.Sprintf("more than %d entries", e.limits.MaxEntries)}
		}
		name := zf.Name
		if name == "" {
			continue
		}
		if len(name) > e.limits.MaxNameLength {
			return &SecurityError{Entry: truncateName(name), Reason: "entry name too long"}
		}
		if zf.Mode()&os.ModeSymlink != 0 {
			return &SecurityError{Entry: name, Reason: "symlink entries are not allowed"}
		}
		target, err := safeJoin(base, name)
		if err != nil {
			return err
		}
		if zf.FileInfo().IsDir() {
			if err := fsutil.EnsureDir(target); err != nil {
				return err
			}
			continue
		}
		if !zf.Mode().IsRegular() {
			return &SecurityError{Entry: name, Reason: "non-regular entry type"}
		}
		// Declared size first, so no output space is committed to a liar.
		if int64(zf.UncompressedSize64) > e.limits.MaxEntryBytes {
			return &SecurityError{Entry: name, Reason: fmt.Sprintf("declared size %d exceeds entry limit", zf.UncompressedSize64)}
		}
		written, err := e.writeEntry(zf, target, e.limits.MaxTotalBytes-totalWritten)
		if err != nil {
			return err
		}
		totalWritten += written
	}
	return nil
}

// writeEntry copies one entry to target, failing mid-copy the moment the
// actual decompressed stream exceeds either the per-entry cap or the
// remaining total budget, regardless of what the header declared.
func (e *Extractor) writeEntry(zf *zip.File, target string, remainingTotal int64) (int64, error) {
	allowed := e.limits.MaxEntryBytes
	if remainingTotal < allowed {
		allowed = remainingTotal
	}
	if allowed < 0 {
		allowed = 0
	}
	if err := fsutil.EnsureDir(filepath.Dir(target)); err != nil {
		return 0, err
	}
	rc, err := zf.Open()
	if err != nil {
		return 0, fmt.Errorf("EXT_FORMAT: open entry %q: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	written, copyErr := io.Copy(out, io.LimitReader(rc, allowed+1))
	closeErr := out.Close()
	if written > allowed {
		_ = os.Remove(target)
		return written, &SecurityError{Entry: zf.Name, Reason: "decompressed stream exceeds size limit"}
	}
	if copyErr != nil {
		_ = os.Remove(target)
		// The central directory already parsed, so a format error from the
		// entry stream means the data inflates past the header's declared
		// size. The zip reader stops it before our own limit does.
		if errors.Is(copyErr, zip.ErrFormat) {
			return written, &SecurityError{Entry: zf.Name, Reason: "decompressed stream exceeds declared size"}
		}
		return written, fmt.Errorf("EXT_FORMAT: extract entry %q: %w", zf.Name, copyErr)
	}
	if closeErr != nil {
		return written, closeErr
	}
	return written, nil
}

// safeJoin resolves an archive entry name under base, rejecting anything
// that escapes it via absolute paths or ".." segments.
func safeJoin(base, name string) (string, error) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return "", &SecurityError{Entry: name, Reason: "absolute path not allowed"}
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &SecurityError{Entry: name, Reason: "path escapes target directory"}
	}
	joined := filepath.Join(base, clean)
	if joined != base && !strings.HasPrefix(joined, base+string(filepath.Separator)) {
		return "", &SecurityError{Entry: name, Reason: "path escapes target directory"}
	}
	return joined, nil
}

func truncateName(name string) string {
	if len(name) <= 64 {
		return name
	}
	return name[:64] + "..."
}
