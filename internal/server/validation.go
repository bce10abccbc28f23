package server

import (
	"bytes"
	"strings"
)

const (
	maxAuthorLength      = 20
	maxDescriptionLength = 20
	maxPayloadBytes      = 250 * 1024
	defaultAuthor        = "anonymous"
)

// payloadMagic tags the app's payload framing. Anything that does not
// open with these four bytes is arbitrary binary and gets rejected.
var payloadMagic = []byte{0x23, 0x52, 0xFF, 0xAC}

type submitRequest struct {
	ID          string `json:"id,omitempty"`
	Bin         []int  `json:"bin"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	ImageData   string `json:"_bs"`
}

// submission is a validated, normalized request ready for the workflow.
type submission struct {
	imageID          string
	author           string
	description      string
	submitterAddress string
	imageData        string // base64 with any data-URI prefix stripped
	payload          []byte // bytes after the 4-byte header
}

// validateSubmission checks structural and size constraints. It performs
// no I/O; a failure is always a validationError.
func validateSubmission(req submitRequest, submitterAddress string) (*submission, error) {
	imageData := strings.TrimSpace(req.ImageData)
	if imageData == "" {
		return nil, validationError{"image data is required"}
	}
	if parts := strings.SplitN(imageData, ",", 2); len(parts) == 2 {
		imageData = parts[1]
	}

	if len(req.Bin) < len(payloadMagic) {
		return nil, validationError{"payload is too short"}
	}
	buf := make([]byte, len(req.Bin))
	for i, value := range req.Bin {
		if value < 0 || value > 255 {
			return nil, validationError{"payload contains values out of byte range"}
		}
		buf[i] = byte(value)
	}
	if !bytes.Equal(buf[:len(payloadMagic)], payloadMagic) {
		return nil, validationError{"payload header mismatch"}
	}
	payload := buf[len(payloadMagic):]
	if len(payload) > maxPayloadBytes {
		return nil, validationError{"payload exceeds size limit"}
	}

	description := strings.TrimSpace(req.Description)
	if len(description) > maxDescriptionLength {
		return nil, validationError{"description must be 20 characters or fewer"}
	}

	author := strings.TrimSpace(req.Author)
	if len(author) > maxAuthorLength {
		return nil, validationError{"author must be 20 characters or fewer"}
	}
	if author == "" {
		author = defaultAuthor
	}

	return &submission{
		imageID:          strings.TrimSpace(req.ID),
		author:           author,
		description:      description,
		submitterAddress: submitterAddress,
		imageData:        imageData,
		payload:          payload,
	}, nil
}
