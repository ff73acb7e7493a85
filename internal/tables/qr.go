package tables

import (
	"fmt"
	"net/url"

	"github.com/skip2/go-qrcode"
)

type QRGenerator struct {
	BaseURL string
	Size    int
}

func NewQRGenerator(baseURL string) *QRGenerator {
	return &QRGenerator{BaseURL: baseURL, Size: 300}
}

// MenuURL is the link printed on the table: <base>/r/<slug>/menu?t=<token>.
func (g *QRGenerator) MenuURL(slug, token string) string {
	return fmt.Sprintf("%s/r/%s/menu?t=%s", g.BaseURL, url.PathEscape(slug), url.QueryEscape(token))
}

func (g *QRGenerator) PNG(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, g.Size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
