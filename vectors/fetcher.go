// Package vectors downloads and caches PSS test vectors.
//
// Test vectors are large filterbank files served by the test vector
// origin server. A vector is fetched at most once: subsequent runs find
// it in the local cache and only re-download when the cached size no
// longer matches the remote copy.
package vectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sys/unix"

	"github.com/ska-telescope/ska-pss-protest/fil"
	"github.com/ska-telescope/ska-pss-protest/types"
)

// diskBuffer is the minimum free space that must remain on the cache
// filesystem after a download.
const diskBuffer = int64(0.5 * (1 << 30))

// EnvConfig holds the environment-driven fetcher settings.
type EnvConfig struct {
	CacheDir  string `env:"CACHE_DIR"`
	ServerURL string `env:"VECTOR_SERVER_URL, default=http://testvectors.jb.man.ac.uk"`
}

// Fetcher resolves test vectors to local paths, downloading them from
// the origin server when the cache cannot satisfy a request.
type Fetcher struct {
	cacheDir string
	baseURL  string
	client   *http.Client
	log      *clog.Logger
}

// NewFetcher creates a fetcher. cacheDir may be empty, in which case the
// CACHE_DIR environment variable is used, falling back to
// ~/.cache/SKA/test_vectors.
func NewFetcher(ctx context.Context, cacheDir string) (*Fetcher, error) {
	var env EnvConfig
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("reading fetcher environment: %w", err)
	}

	if cacheDir == "" {
		cacheDir = env.CacheDir
	}
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default cache dir: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache", "SKA", "test_vectors")
	}

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", cacheDir, err)
	}

	log := clog.FromContext(ctx)
	log.Infof("Test vector cache: %s", cacheDir)

	return &Fetcher{
		cacheDir: cacheDir,
		baseURL:  env.ServerURL,
		client:   &http.Client{Timeout: 20 * time.Second},
		log:      log,
	}, nil
}

// CacheDir returns the directory vectors are cached in.
func (f *Fetcher) CacheDir() string { return f.cacheDir }

// FromName resolves a vector by exact filename and returns its local
// path. With refresh set the cache is bypassed and a fresh copy pulled.
//
// A cached vector whose size differs from the remote copy may still be
// mid-download by a concurrent protest process, so the fetcher backs off
// until the size stabilises before deciding to re-download.
func (f *Fetcher) FromName(ctx context.Context, name string, refresh bool) (string, error) {
	remote, err := url.JoinPath(f.baseURL, fil.VectorType(name), name)
	if err != nil {
		return "", fmt.Errorf("building vector URL: %w", err)
	}

	localPath := filepath.Join(f.cacheDir, name)

	if !refresh {
		if st, err := os.Stat(localPath); err == nil {
			f.log.Infof("%s in local cache", name)

			remoteSize, err := f.remoteSize(ctx, remote)
			if err != nil {
				return "", err
			}
			if st.Size() == remoteSize {
				return localPath, nil
			}

			f.log.Infof("%s and %s are different sizes", localPath, remote)
			stable, err := f.waitForStableSize(ctx, localPath, st.Size())
			if err != nil {
				return "", err
			}
			if stable == remoteSize {
				f.log.Infof("%s passed checks", localPath)
				return localPath, nil
			}
			f.log.Infof("Repulling %s", localPath)
		} else {
			f.log.Infof("%s not in local cache", name)
		}
	}

	if err := f.download(ctx, remote, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}

// FromProperties asks the origin server for a vector matching the given
// signal properties. The server answers with a vector name, which is
// then resolved through FromName, or "None" when no such vector exists.
func (f *Fetcher) FromProperties(ctx context.Context, spec types.VectorSpec) (string, error) {
	q := url.Values{}
	q.Set("type", spec.Type)
	q.Set("freq", strconv.FormatFloat(spec.Freq, 'g', -1, 64))
	q.Set("duty", strconv.FormatFloat(spec.Duty, 'g', -1, 64))
	q.Set("dm", strconv.FormatFloat(spec.DM, 'g', -1, 64))
	q.Set("acceleration", strconv.FormatFloat(spec.Accel, 'g', -1, 64))
	q.Set("shape", spec.Shape)
	q.Set("sn", strconv.FormatFloat(spec.SN, 'g', -1, 64))
	q.Set("rfi", spec.RFI)
	q.Set("seed", "None")
	q.Set("version", "None")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/query?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying vector server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vector server rejected query: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading vector server response: %w", err)
	}

	name := string(body)
	if name == "None" {
		return "", fmt.Errorf("no vector with requested properties")
	}

	f.log.Infof("Found vector: %s", name)
	return f.FromName(ctx, name, spec.Refresh)
}

// Flush removes all cached vectors.
func (f *Fetcher) Flush() error {
	f.log.Infof("Clearing cache from %s", f.cacheDir)
	entries, err := os.ReadDir(f.cacheDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(f.cacheDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			f.log.Errorf("Failed to delete %s: %v", path, err)
			continue
		}
		f.log.Infof("Deleted: %s", path)
	}
	return nil
}

// remoteSize returns the Content-Length of the vector at url.
func (f *Fetcher) remoteSize(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("checking remote vector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("vector not found on remote server: %s", resp.Status)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("remote server did not report a size for %s", rawURL)
	}
	return resp.ContentLength, nil
}

// waitForStableSize backs off until the size of the file at path stops
// changing and returns the final size. A changing size means another
// process is writing the vector.
func (f *Fetcher) waitForStableSize(ctx context.Context, path string, size int64) (int64, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 30 * time.Minute

	err := backoff.Retry(func() error {
		st, err := os.Stat(path)
		if err != nil {
			return backoff.Permanent(err)
		}
		if st.Size() != size {
			size = st.Size()
			return fmt.Errorf("vector %s still being written", path)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return 0, fmt.Errorf("waiting for %s to stabilise: %w", path, err)
	}
	return size, nil
}

// checkDiskSpace verifies the cache filesystem can hold a vector of the
// given size while keeping the disk buffer free.
func (f *Fetcher) checkDiskSpace(size int64) error {
	var st unix.Statfs_t
	if err := unix.Statfs(f.cacheDir, &st); err != nil {
		return fmt.Errorf("checking free space in %s: %w", f.cacheDir, err)
	}
	free := int64(st.Bavail) * st.Bsize
	if size+diskBuffer > free {
		return fmt.Errorf("insufficient disk space in %s: need %d bytes, %d free", f.cacheDir, size+diskBuffer, free)
	}
	return nil
}

// download pulls a vector into the cache. The file is written to a
// temporary name and renamed into place so a partial download is never
// mistaken for a cached vector.
func (f *Fetcher) download(ctx context.Context, rawURL, localPath string) error {
	size, err := f.remoteSize(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := f.checkDiskSpace(size); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	// Downloads can be tens of GB; disable the client timeout and rely
	// on the context instead.
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("pulling vector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector not found: %s", resp.Status)
	}

	f.log.Infof("Pulling %s", rawURL)

	tmp, err := os.CreateTemp(f.cacheDir, filepath.Base(localPath)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing vector to cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return err
	}
	f.log.Infof("Data written to %s", localPath)
	return nil
}
