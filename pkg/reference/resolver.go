package reference

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Resolver turns a track (a title, a URL or a path) into a locator a
// Decoder can open.
type Resolver interface {
	Resolve(ctx context.Context, track string) (string, error)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func isMediaURL(s string) bool {
	if !isURL(s) {
		return false
	}
	u, _ := url.Parse(s)
	_, ok := decoderByExtension(u.Path)
	return ok
}

// LocalResolver passes through existing files and direct media URLs.
type LocalResolver struct{}

var _ Resolver = LocalResolver{}

func (LocalResolver) Resolve(ctx context.Context, track string) (string, error) {
	if track == "" {
		return "", fmt.Errorf("%w: the track is empty", ErrResolution)
	}
	if isMediaURL(track) {
		return track, nil
	}
	if st, err := os.Stat(track); err == nil && !st.IsDir() {
		return track, nil
	}
	return "", fmt.Errorf("%w: %q is neither a file nor a media URL", ErrResolution, track)
}

const (
	DefaultYTDLPCommand = "yt-dlp"
)

var DefaultYTDLPArgs = []string{"-g", "-f", "bestaudio", "--no-playlist"}

// YTDLPResolver asks yt-dlp (or youtube-dl) for the direct URL of the
// best audio stream. Titles are searched, URLs are passed as-is.
type YTDLPResolver struct {
	Command string
	Args    []string
	Timeout time.Duration
}

var _ Resolver = (*YTDLPResolver)(nil)

func NewYTDLPResolver() *YTDLPResolver {
	return &YTDLPResolver{
		Command: DefaultYTDLPCommand,
		Args:    DefaultYTDLPArgs,
		Timeout: time.Minute,
	}
}

func (r *YTDLPResolver) Resolve(ctx context.Context, track string) (_ret string, _err error) {
	logger.Debugf(ctx, "YTDLPResolver.Resolve(ctx, %q)", track)
	defer func() { logger.Debugf(ctx, "/YTDLPResolver.Resolve(ctx, %q): %q %v", track, _ret, _err) }()

	if track == "" {
		return "", fmt.Errorf("%w: the track is empty", ErrResolution)
	}

	query := track
	if !isURL(track) {
		query = "ytsearch1:" + track
	}

	if r.Timeout > 0 {
		var cancelFn context.CancelFunc
		ctx, cancelFn = context.WithTimeout(ctx, r.Timeout)
		defer cancelFn()
	}

	args := append(append([]string{}, r.Args...), query)
	cmd := exec.CommandContext(ctx, r.Command, args...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s %s: %w: %s", ErrResolution, r.Command, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}

	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			return line, nil
		}
	}
	return "", fmt.Errorf("%w: %s found nothing for %q", ErrResolution, r.Command, track)
}

const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = time.Hour
)

// CachingResolver remembers successful resolutions for a while, since
// resolving a title usually takes seconds.
type CachingResolver struct {
	Resolver Resolver
	cache    *expirable.LRU[string, string]
}

var _ Resolver = (*CachingResolver)(nil)

func NewCachingResolver(resolver Resolver, size int, ttl time.Duration) *CachingResolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &CachingResolver{
		Resolver: resolver,
		cache:    expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, track string) (string, error) {
	if locator, ok := r.cache.Get(track); ok {
		logger.Debugf(ctx, "resolved %q from the cache: %q", track, locator)
		return locator, nil
	}
	locator, err := r.Resolver.Resolve(ctx, track)
	if err != nil {
		return "", err
	}
	r.cache.Add(track, locator)
	return locator, nil
}

// ChainResolver returns the result of the first resolver that succeeds.
type ChainResolver []Resolver

var _ Resolver = ChainResolver(nil)

func (c ChainResolver) Resolve(ctx context.Context, track string) (string, error) {
	var mErr *multierror.Error
	for _, r := range c {
		locator, err := r.Resolve(ctx, track)
		if err == nil {
			return locator, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		mErr = multierror.Append(mErr, err)
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolution, err)
	}
	return "", fmt.Errorf("%w: no resolvers configured", ErrResolution)
}

// DefaultResolver handles local files and direct URLs itself, and
// searches everything else with yt-dlp.
func DefaultResolver() Resolver {
	return ChainResolver{
		LocalResolver{},
		NewCachingResolver(NewYTDLPResolver(), DefaultCacheSize, DefaultCacheTTL),
	}
}
