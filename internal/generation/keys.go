package generation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"storefront/internal/domain"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ownerScope is the per-accessor prefix of every blob key.
func ownerScope(job *domain.GenerationJob) string {
	if owner := job.OwnerID(); owner != "" {
		return "u-" + safeSegment(owner)
	}
	if job.ClientToken != "" {
		return "anon-" + safeSegment(job.ClientToken)
	}
	return "anon"
}

func safeSegment(v string) string {
	v = unsafeKeyChars.ReplaceAllString(strings.TrimSpace(v), "_")
	if len(v) > 64 {
		v = v[:64]
	}
	if v == "" {
		return "_"
	}
	return v
}

// blobKey names one stored image. The content hash keeps retried uploads from
// overwriting unrelated data.
func blobKey(job *domain.GenerationJob, label string, data []byte, mimeType string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("designs/%s/%s/%s-%s.%s",
		ownerScope(job), safeSegment(job.ID), label, hex.EncodeToString(sum[:4]), extensionFor(mimeType))
}

func variantLabel(i int) string {
	return fmt.Sprintf("variant-%d", i)
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}
