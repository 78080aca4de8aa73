package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"ai-sentinel/internal/domain/detection"
	"ai-sentinel/internal/utils"
)

// Validator accepts any payload whose media type is image/*. Header decoding
// and content scans only annotate the result.
type Validator struct {
	maxFileSize int64
	logger      *utils.Logger
}

// NewValidator constructs a validator with the given size ceiling.
func NewValidator(maxFileSize int64, logger *utils.Logger) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
	"bmp":  {0x42, 0x4D},
}

// Validate checks raw bytes against the declared media type. An empty
// declared type is sniffed from the content.
func (v *Validator) Validate(raw []byte, declaredType string) (ValidationResult, error) {
	result := ValidationResult{FileSize: int64(len(raw))}

	if len(raw) == 0 {
		return result, &detection.ValidationError{Field: "data", Reason: "image payload is empty"}
	}
	if v.maxFileSize > 0 && result.FileSize > v.maxFileSize {
		return result, &detection.ValidationError{
			Field:  "size",
			Reason: fmt.Sprintf("%s exceeds limit of %s", utils.FormatMegabytes(result.FileSize), utils.FormatMegabytes(v.maxFileSize)),
		}
	}

	mediaType := normalizeMediaType(declaredType)
	if mediaType == "" {
		mediaType = normalizeMediaType(mimetype.Detect(raw).String())
		result.Sniffed = true
	}
	result.MediaType = mediaType
	if !strings.HasPrefix(mediaType, "image/") {
		return result, &detection.ValidationError{
			Field:  "media_type",
			Reason: fmt.Sprintf("%q is not an image type", mediaType),
		}
	}

	v.inspect(raw, &result)
	return result, nil
}

func normalizeMediaType(mediaType string) string {
	base, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

func (v *Validator) inspect(raw []byte, result *ValidationResult) {
	config, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		v.logger.DebugTag("Analyzer", "image header not decodable: type=%s err=%v", result.MediaType, err)
	} else {
		result.Format = format
		result.Width = config.Width
		result.Height = config.Height
	}

	declared := strings.TrimPrefix(result.MediaType, "image/")
	if declared == "jpg" {
		declared = "jpeg"
	}
	if !validateFileSignature(raw, declared) {
		result.SecurityRisk = "signature mismatch"
		v.logger.WarnTag("Analyzer", "file signature mismatch: declared=%s header=%x", result.MediaType, raw[:min(len(raw), 16)])
	}
	if token := scanForEmbeddedContent(raw); token != "" {
		result.SecurityRisk = "suspicious content"
		v.logger.WarnTag("Analyzer", "suspicious content in image payload: token=%s", token)
	}
}

func validateFileSignature(raw []byte, format string) bool {
	signature, ok := imageSignatures[format]
	if !ok {
		return true
	}
	return bytes.HasPrefix(raw, signature)
}

var embeddedSignatures = map[string][]byte{
	"executable": {0x4D, 0x5A},
	"pdf":        {0x25, 0x50, 0x44, 0x46},
	"zip":        {0x50, 0x4B, 0x03, 0x04},
	"gzip":       {0x1F, 0x8B, 0x08},
}

var svgScriptTokens = []string{
	"<script",
	"javascript:",
	"onload=",
	"onerror=",
	"<iframe",
	"<object",
	"<embed",
}

func scanForEmbeddedContent(raw []byte) string {
	for name, signature := range embeddedSignatures {
		if bytes.HasPrefix(raw, signature) {
			return name
		}
	}
	lower := strings.ToLower(string(raw))
	if !strings.Contains(lower, "<svg") {
		return ""
	}
	for _, token := range svgScriptTokens {
		if strings.Contains(lower, token) {
			return token
		}
	}
	return ""
}
