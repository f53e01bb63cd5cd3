package dispatch

import (
	"bytes"
	"context"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/faults"
)

// BlobStore is the byte access the processors need.
type BlobStore interface {
	Open(locator string) (io.ReadCloser, error)
	Save(reader io.Reader) (string, int64, error)
}

const derivativeJPEGQuality = 85

// imageProcessor decodes the original, records its dimensions and stores a
// thumbnail and a preview. Both derivatives are JPEG regardless of the
// source format.
type imageProcessor struct {
	blobs          BlobStore
	thumbnailMaxPx int
	previewMaxPx   int
}

func (p *imageProcessor) process(_ context.Context, media *asset.Asset) (asset.Derivatives, error) {
	reader, err := p.blobs.Open(media.StorageLocator)
	if err != nil {
		return asset.Derivatives{}, err
	}
	defer reader.Close()

	original, err := imaging.Decode(reader, imaging.AutoOrientation(true))
	if err != nil {
		return asset.Derivatives{}, faults.Wrap(faults.ErrPermanent, "dispatch", "decode image", media.ID, err)
	}
	bounds := original.Bounds()

	thumbnail, err := p.encodeFitted(original, p.thumbnailMaxPx)
	if err != nil {
		return asset.Derivatives{}, faults.Wrap(faults.ErrPermanent, "dispatch", "thumbnail", media.ID, err)
	}
	preview, err := p.encodeFitted(original, p.previewMaxPx)
	if err != nil {
		return asset.Derivatives{}, faults.Wrap(faults.ErrPermanent, "dispatch", "preview", media.ID, err)
	}

	return asset.Derivatives{
		ThumbnailLocator: thumbnail,
		PreviewLocator:   preview,
		Width:            bounds.Dx(),
		Height:           bounds.Dy(),
	}, nil
}

// encodeFitted scales the image down to fit maxPx on the long edge and
// stores the JPEG. Images already within the bound are stored unscaled.
func (p *imageProcessor) encodeFitted(original image.Image, maxPx int) (string, error) {
	fitted := imaging.Fit(original, maxPx, maxPx, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(derivativeJPEGQuality)); err != nil {
		return "", err
	}
	locator, _, err := p.blobs.Save(&buf)
	return locator, err
}
