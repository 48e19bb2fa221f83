package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patisserie-labs/storefront/pkg/logger"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestSign(t *testing.T) {
	params := map[string]string{"timestamp": "1315060510", "public_id": "sample_image", "empty": ""}
	// Reference value from the CDN's signing documentation.
	assert.Equal(t, "b4ad47fb4e25c7bf5f92a20089f9db59bc302313", Sign(params, "abcd"))
}

func TestClient_Upload(t *testing.T) {
	img := pngBytes(t)
	fixed := time.Unix(1700000000, 0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(MaxUploadBytes))
		assert.Equal(t, "key", r.FormValue("api_key"))
		assert.Equal(t, "shop/products", r.FormValue("folder"))
		assert.Equal(t, "1700000000", r.FormValue("timestamp"))
		want := Sign(map[string]string{"folder": "shop/products", "timestamp": "1700000000", "public_id": "eclair"}, "secret")
		assert.Equal(t, want, r.FormValue("signature"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		json.NewEncoder(w).Encode(map[string]interface{}{
			"public_id":  "shop/products/eclair",
			"secure_url": "https://cdn.example.com/shop/products/eclair.png",
			"width":      2,
			"height":     2,
			"format":     "png",
		})
	}))
	defer server.Close()

	c := New(Config{APIKey: "key", APISecret: "secret", Folder: "shop", UploadURL: server.URL, HTTPClient: server.Client()}, logger.NewDiscard())
	c.now = func() time.Time { return fixed }

	up, err := c.Upload(context.Background(), bytes.NewReader(img), "eclair.png", "image/png", "products", "eclair")
	require.NoError(t, err)
	assert.Equal(t, "shop/products/eclair", up.PublicID)
	assert.Equal(t, 2, up.Width)
}

func TestClient_UploadRejects(t *testing.T) {
	c := New(Config{APIKey: "key", APISecret: "secret", UploadURL: "http://127.0.0.1:1"}, logger.NewDiscard())

	_, err := c.Upload(context.Background(), bytes.NewReader([]byte("GIF89a")), "a.gif", "image/gif", "", "")
	assert.True(t, errors.Is(err, ErrUnsupportedType))

	_, err = c.Upload(context.Background(), bytes.NewReader([]byte("plain text")), "a.png", "image/png", "", "")
	assert.True(t, errors.Is(err, ErrUnsupportedType), "content sniffing must match the declared type")

	big := make([]byte, MaxUploadBytes+1)
	_, err = c.Upload(context.Background(), bytes.NewReader(big), "a.png", "image/png", "", "")
	assert.True(t, errors.Is(err, ErrTooLarge))

	unconfigured := New(Config{}, logger.NewDiscard())
	assert.False(t, unconfigured.Configured())
	_, err = unconfigured.Upload(context.Background(), bytes.NewReader(pngBytes(t)), "a.png", "image/png", "", "")
	assert.True(t, errors.Is(err, ErrUploadNotConfigured))
}

func TestClient_DeliveryURL(t *testing.T) {
	c := New(Config{CloudName: "demo"}, logger.NewDiscard())

	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/shop/eclair.png",
		c.DeliveryURL("shop/eclair.png", Transform{}))
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/c_fill,w_400,h_300,q_auto,f_webp/shop/eclair",
		c.DeliveryURL("shop/eclair", Transform{Width: 400, Height: 300, Crop: "fill", Quality: "auto", Format: "webp"}))
}
