package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/db"
)

const saltLength = 21

// ObjectStorage stores a blob under filename and returns the public base URL
// the file can be fetched from (base + "/" + filename).
type ObjectStorage interface {
	Upload(ctx context.Context, body []byte, filename, contentType string) (string, error)
}

// extension -> decoder format name reported by image.DecodeConfig
var allowedExtensions = map[string]string{
	"png":  "png",
	"gif":  "gif",
	"jpg":  "jpeg",
	"jpeg": "jpeg",
}

type Assets struct {
	storage ObjectStorage
	salt    func() string
	logger  *zap.SugaredLogger
}

func NewAssets(storage ObjectStorage, l *zap.SugaredLogger) (*Assets, error) {
	gen, err := nanoid.Standard(saltLength)
	if err != nil {
		return nil, errors.Wrap(err, "nanoid generator")
	}
	return &Assets{
		storage: storage,
		salt:    gen,
		logger:  l,
	}, nil
}

// Upload decodes a base64 data URI (data:image/png;base64,...), checks the
// image against the allow-list and pushes it to object storage. The returned
// asset is not persisted yet.
func (a *Assets) Upload(ctx context.Context, dataURI string) (*db.Asset, error) {
	ext, payload, err := parseDataURI(dataURI)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, validationError("image is not valid base64")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, validationError("image data could not be decoded")
	}
	if format != allowedExtensions[ext] {
		return nil, errors.Wrapf(ErrUnsupportedMedia, "declared %s but content is %s", ext, format)
	}

	asset := db.Asset{
		Salt:      a.salt(),
		Extension: ext,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}

	baseURL, err := a.storage.Upload(ctx, raw, asset.Filename(), "image/"+format)
	if err != nil {
		a.logger.Errorw("image upload failed", "filename", asset.Filename(), "error", err)
		return nil, errors.Wrapf(ErrStorage, "upload %s: %v", asset.Filename(), err)
	}
	asset.BaseURL = strings.TrimRight(baseURL, "/")

	return &asset, nil
}

func parseDataURI(dataURI string) (string, string, error) {
	if dataURI == "" {
		return "", "", validationError("image is required")
	}
	if !strings.HasPrefix(dataURI, "data:") {
		return "", "", validationError("image must be a data URI")
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(dataURI, "data:"), ",")
	if !ok || payload == "" {
		return "", "", validationError("image data URI has no payload")
	}

	mediaType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return "", "", validationError("image data URI must be base64 encoded")
	}

	mainType, subType, ok := strings.Cut(strings.ToLower(mediaType), "/")
	if !ok || mainType != "image" {
		return "", "", errors.Wrapf(ErrUnsupportedMedia, "media type %q", mediaType)
	}
	if _, ok := allowedExtensions[subType]; !ok {
		return "", "", errors.Wrap(ErrUnsupportedMedia, fmt.Sprintf("extension %q is not allowed", subType))
	}
	return subType, payload, nil
}
