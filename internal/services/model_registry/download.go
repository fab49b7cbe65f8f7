package model_registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SiliconJelly/DubAI/internal/utils/hashutil"
	"github.com/SiliconJelly/DubAI/internal/utils/pathutil"

	"github.com/cenkalti/backoff/v4"
	"github.com/cozy-creator/hf-hub/hub"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"go.uber.org/zap"
)

func (m *Manager) materializeHuggingface(ctx context.Context, entry Entry, source *Source) (string, error) {
	if dir, err := m.snapshotDir(source.Location); err == nil {
		return dir, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.logger.Info("Fetching model snapshot", zap.String("repo", source.Location))

	params := hub.DownloadParams{
		Repo: &hub.Repo{Id: source.Location},
	}
	if _, err := m.hubClient.Download(&params); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", source.Location, err)
	}

	return m.snapshotDir(source.Location)
}

// snapshotDir resolves the hub cache layout: refs/main holds the commit
// whose snapshot folder contains the model files.
func (m *Manager) snapshotDir(repoID string) (string, error) {
	storageFolder := filepath.Join(m.hubClient.CacheDir, repoFolderName(repoID, "model"))

	refPath := filepath.Join(storageFolder, "refs", "main")
	commitHash, err := os.ReadFile(refPath)
	if err != nil {
		return "", fmt.Errorf("snapshot not downloaded: %w", err)
	}

	snapshotPath := filepath.Join(storageFolder, "snapshots", strings.TrimSpace(string(commitHash)))
	if _, err := os.Stat(snapshotPath); err != nil {
		return "", fmt.Errorf("snapshot missing: %w", err)
	}

	return snapshotPath, nil
}

// converts "username/repo" to "models--username--repo"
func repoFolderName(repoID string, repoType string) string {
	repoParts := strings.Split(repoID, "/")
	parts := append([]string{repoType + "s"}, repoParts...)
	return strings.Join(parts, "--")
}

func (m *Manager) materializeDirect(ctx context.Context, entry Entry, source *Source) (string, error) {
	destDir := m.directDir(entry)
	if err := pathutil.EnsureDir(destDir); err != nil {
		return "", err
	}

	type fetch struct {
		url  string
		name string
	}

	var fetches []fetch
	if len(entry.Files) == 0 {
		fetches = []fetch{{url: source.Location, name: filepath.Base(source.Location)}}
	} else {
		baseURL := strings.TrimSuffix(source.Location, "/")
		for _, name := range entry.Files {
			fetches = append(fetches, fetch{url: baseURL + "/" + name, name: name})
		}
	}

	for i, f := range fetches {
		destPath := filepath.Join(destDir, f.name)
		if _, err := os.Stat(destPath); err == nil {
			continue
		}

		if err := m.downloadWithProgress(ctx, f.url, destPath); err != nil {
			return "", err
		}

		if err := verifyModelFile(destPath); err != nil {
			os.Remove(destPath)
			return "", fmt.Errorf("downloaded file failed verification: %w", err)
		}

		if i == 0 && entry.Blake3 != "" {
			digest, err := hashutil.Blake3File(destPath)
			if err != nil {
				return "", err
			}
			if digest != entry.Blake3 {
				os.Remove(destPath)
				return "", fmt.Errorf("digest mismatch for %s: got %s", f.name, digest)
			}
		}
	}

	return destDir, nil
}

func (m *Manager) downloadWithProgress(ctx context.Context, url, destPath string) error {
	tmpPath := destPath + ".tmp"

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Minute
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second

	// retry with backoff
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return m.downloadWithResume(ctx, url, destPath, tmpPath)
	}, b)
}

func (m *Manager) downloadWithResume(ctx context.Context, url, destPath, tmpPath string) error {
	// check for partial download
	var initialSize int64 = 0
	if info, err := os.Stat(tmpPath); err == nil {
		initialSize = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if token := m.hfToken(); token != "" && strings.Contains(url, "huggingface.co") {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if initialSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", initialSize))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// server ignored the range request; start from scratch
		initialSize = 0
	case http.StatusPartialContent:
	default:
		return fmt.Errorf("unexpected status %s for %s", resp.Status, url)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if initialSize > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	tmpFile, err := os.OpenFile(tmpPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer tmpFile.Close()

	var totalSize int64
	if resp.ContentLength > 0 {
		totalSize = initialSize + resp.ContentLength
	}

	// Progress is rendered on stderr; stdout may be carrying protocol
	// frames when a load triggers a download.
	progress := mpb.New(
		mpb.WithOutput(os.Stderr),
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	bar := progress.AddBar(totalSize,
		mpb.PrependDecorators(
			decor.Name(filepath.Base(destPath), decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	// set initial progress
	if initialSize > 0 {
		bar.SetCurrent(initialSize)
	}

	reader := bar.ProxyReader(resp.Body)
	defer reader.Close()

	if _, err := io.Copy(tmpFile, reader); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}

	progress.Wait()

	if totalSize > 0 {
		info, err := os.Stat(tmpPath)
		if err != nil {
			return fmt.Errorf("failed to stat temp file: %w", err)
		}
		if info.Size() != totalSize {
			return fmt.Errorf("incomplete download: got %d of %d bytes", info.Size(), totalSize)
		}
	}

	return os.Rename(tmpPath, destPath)
}

func verifyModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}

	// Model weights have a sane minimum size; sidecar files (tokens,
	// lexicons) can be tiny.
	if strings.EqualFold(filepath.Ext(path), ".onnx") && info.Size() < 1024*1024 {
		return fmt.Errorf("file too small: %d bytes", info.Size())
	}

	return nil
}
