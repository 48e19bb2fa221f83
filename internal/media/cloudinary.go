// Package media uploads product and banner images to the image CDN and
// builds transformed delivery URLs.
package media

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patisserie-labs/storefront/internal/httputil"
	"github.com/patisserie-labs/storefront/pkg/logger"
)

// MaxUploadBytes bounds a single image upload.
const MaxUploadBytes = 5 << 20

// AllowedContentTypes are the image types accepted for upload.
var AllowedContentTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var (
	ErrTooLarge            = errors.New("image exceeds upload limit")
	ErrUnsupportedType     = errors.New("unsupported image type")
	ErrUploadNotConfigured = errors.New("image uploads are not configured")
)

// Config holds CDN credentials.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	// UploadURL and DeliveryBase override the public endpoints, mainly for tests.
	UploadURL    string
	DeliveryBase string
	HTTPClient   *http.Client
}

// Upload is the result of a successful upload.
type Upload struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
}

// Transform describes delivery-time image transformations.
type Transform struct {
	Width   int
	Height  int
	Crop    string // fill, fit, limit, thumb
	Quality string // auto or 1-100
	Format  string // auto, webp, jpg, png
}

func (t Transform) segment() string {
	var parts []string
	if t.Crop != "" {
		parts = append(parts, "c_"+t.Crop)
	}
	if t.Width > 0 {
		parts = append(parts, "w_"+strconv.Itoa(t.Width))
	}
	if t.Height > 0 {
		parts = append(parts, "h_"+strconv.Itoa(t.Height))
	}
	if t.Quality != "" {
		parts = append(parts, "q_"+t.Quality)
	}
	if t.Format != "" {
		parts = append(parts, "f_"+t.Format)
	}
	return strings.Join(parts, ",")
}

// Client is a Cloudinary-compatible image CDN client.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger
	now  func() time.Time
}

func New(cfg Config, log *logger.Logger) *Client {
	if cfg.UploadURL == "" && cfg.CloudName != "" {
		cfg.UploadURL = "https://api.cloudinary.com/v1_1/" + cfg.CloudName + "/image/upload"
	}
	if cfg.DeliveryBase == "" && cfg.CloudName != "" {
		cfg.DeliveryBase = "https://res.cloudinary.com/" + cfg.CloudName + "/image/upload"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		retry := httputil.DefaultRetryConfig()
		httpClient = httputil.NewAPIClient(httputil.APIClientConfig{
			Timeout: 60 * time.Second,
			Retry:   &retry,
		}).HTTPClient()
	}
	if log == nil {
		log = logger.NewDefault("media")
	}
	return &Client{cfg: cfg, http: httpClient, log: log, now: time.Now}
}

// Configured reports whether uploads can be signed.
func (c *Client) Configured() bool {
	return c.cfg.UploadURL != "" && c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// Sign computes the upload signature: SHA-1 over the sorted key=value
// pairs joined by '&', followed by the API secret.
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// Upload sends an image to the CDN. subfolder is appended to the configured
// folder; publicID may be empty to let the CDN choose one.
func (c *Client) Upload(ctx context.Context, r io.Reader, filename, contentType, subfolder, publicID string) (Upload, error) {
	if !c.Configured() {
		return Upload{}, ErrUploadNotConfigured
	}
	if _, ok := AllowedContentTypes[contentType]; !ok {
		return Upload{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	data, err := httputil.ReadAllStrict(r, MaxUploadBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			return Upload{}, ErrTooLarge
		}
		return Upload{}, fmt.Errorf("read image: %w", err)
	}
	if detected := http.DetectContentType(data); detected != contentType && !(contentType == "image/webp" && detected == "application/octet-stream") {
		return Upload{}, fmt.Errorf("%w: content is %s", ErrUnsupportedType, detected)
	}

	params := map[string]string{
		"folder":    path.Join(c.cfg.Folder, subfolder),
		"public_id": publicID,
		"timestamp": strconv.FormatInt(c.now().Unix(), 10),
	}
	signature := Sign(params, c.cfg.APISecret)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range params {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return Upload{}, err
		}
	}
	_ = mw.WriteField("api_key", c.cfg.APIKey)
	_ = mw.WriteField("signature", signature)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Upload{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Upload{}, err
	}
	if err := mw.Close(); err != nil {
		return Upload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, bytes.NewReader(body.Bytes()))
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("upload image: %w", err)
	}

	var out Upload
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		return Upload{}, fmt.Errorf("upload image: %w", err)
	}
	c.log.WithContext(ctx).
		WithField("public_id", out.PublicID).
		WithField("bytes", len(data)).
		Info("image uploaded")
	return out, nil
}

// DeliveryURL returns the public URL for publicID with transformations applied.
func (c *Client) DeliveryURL(publicID string, t Transform) string {
	base := strings.TrimRight(c.cfg.DeliveryBase, "/")
	escaped := (&url.URL{Path: strings.TrimLeft(publicID, "/")}).EscapedPath()
	if seg := t.segment(); seg != "" {
		return base + "/" + seg + "/" + escaped
	}
	return base + "/" + escaped
}
