package dispatch

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"fieldcapture/internal/asset"
	"fieldcapture/internal/faults"
)

const textSnippetMaxBytes = 4096

// documentProcessor verifies the stored bytes are readable and, for plain
// text uploads, extracts a leading snippet for search. PDFs and binary
// documents pass through with no derivatives; readability of the bytes is
// the whole check.
type documentProcessor struct {
	blobs BlobStore
}

func (p *documentProcessor) process(_ context.Context, media *asset.Asset) (asset.Derivatives, error) {
	reader, err := p.blobs.Open(media.StorageLocator)
	if err != nil {
		return asset.Derivatives{}, err
	}
	defer reader.Close()

	head := make([]byte, textSnippetMaxBytes)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return asset.Derivatives{}, faults.Wrap(faults.ErrPermanent, "dispatch", "read document", media.ID, err)
	}
	head = head[:n]

	derived := asset.Derivatives{}
	if strings.HasPrefix(media.MimeType, "text/") {
		derived.ExtractedText = textSnippet(head)
	}
	return derived, nil
}

// textSnippet trims the head to valid UTF-8 so a multibyte rune split at
// the read boundary never yields a mangled snippet.
func textSnippet(head []byte) string {
	for len(head) > 0 && !utf8.Valid(head) {
		head = head[:len(head)-1]
	}
	return strings.TrimSpace(string(head))
}
