package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

// Downloader fetches a remote resource into dst.
type Downloader interface {
	Download(ctx context.Context, url string, dst io.Writer) (int64, error)
}

// Staged locates the local copies of one item's image.
type Staged struct {
	LocalPath string
	// EnginePath is the copy in the engine's input dir; empty when not copied.
	EnginePath string
	// EngineName is what the workflow's LoadImage node is pointed at.
	EngineName string
}

// FileStager downloads images into a temp dir and, when an engine input
// dir is set, copies them there under the same file name.
type FileStager struct {
	tempDir    string
	inputDir   string
	downloader Downloader
	log        *logger.Logger
}

func NewFileStager(tempDir, inputDir string, d Downloader, log *logger.Logger) *FileStager {
	if log == nil {
		log = logger.Nop()
	}
	return &FileStager{tempDir: tempDir, inputDir: inputDir, downloader: d, log: log.With("component", "stager")}
}

func (s *FileStager) Stage(ctx context.Context, item entity.WorkItem) (Staged, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return Staged{}, fmt.Errorf("create temp dir: %w", err)
	}
	name := SafeFileName(item.ID) + ".jpg"
	local := filepath.Join(s.tempDir, name)

	if err := s.download(ctx, item.SourceURL, local); err != nil {
		s.remove(local)
		return Staged{}, err
	}
	st := Staged{LocalPath: local, EngineName: local}

	if s.inputDir != "" {
		if err := os.MkdirAll(s.inputDir, 0o755); err != nil {
			s.remove(local)
			return Staged{}, fmt.Errorf("create engine input dir: %w", err)
		}
		dst := filepath.Join(s.inputDir, name)
		if err := copyFile(local, dst); err != nil {
			s.remove(local)
			s.remove(dst)
			return Staged{}, fmt.Errorf("copy to engine input: %w", err)
		}
		st.EnginePath = dst
		st.EngineName = name
	}
	return st, nil
}

func (s *FileStager) download(ctx context.Context, url, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	n, err := s.downloader.Download(ctx, url, f)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if n == 0 {
		return errors.New("download image: empty body")
	}
	s.log.Debug("downloaded image", "path", path, "bytes", n)
	return nil
}

// Cleanup removes every copy. Failures are logged only.
func (s *FileStager) Cleanup(st Staged) {
	s.remove(st.LocalPath)
	s.remove(st.EnginePath)
}

func (s *FileStager) remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error("cleanup failed", "path", path, "error", err)
	}
}

// SafeFileName keeps [A-Za-z0-9._-] and replaces everything else with '_'.
func SafeFileName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "item"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '.' && b.Len() > 0:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
