package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"mirrorgate/internal/environment"
	"mirrorgate/internal/keystroke"
)

// Digest names accepted by NewHasher.
const (
	DigestSHA256   = "sha256"
	DigestSHA3_256 = "sha3-256"
)

// FingerprintLength is the hex length of every supported digest.
const FingerprintLength = 64

// ErrUnknownDigest is returned by NewHasher for an unsupported digest name.
var ErrUnknownDigest = errors.New("identity: unknown digest")

const payloadSeparator = "|"

// Hasher derives the session fingerprint. The fingerprint binds an
// identifier to timing and environment facts; it is not a credential.
type Hasher struct {
	digest  string
	newHash func() hash.Hash
}

// NewHasher returns a hasher for the named digest. An empty name selects
// SHA-256.
func NewHasher(digest string) (*Hasher, error) {
	switch strings.ToLower(digest) {
	case "", DigestSHA256:
		return &Hasher{digest: DigestSHA256, newHash: sha256.New}, nil
	case DigestSHA3_256, "sha3_256":
		return &Hasher{digest: DigestSHA3_256, newHash: sha3.New256}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDigest, digest)
	}
}

// Digest returns the digest name.
func (h *Hasher) Digest() string { return h.digest }

// Payload builds the delimited string that is digested:
// identifier|userAgent|WxH|timezone|totalDurationMs|sampleCount|firstKeystrokeMs
func Payload(identifier string, m keystroke.Metrics, env environment.Descriptor) string {
	first := "0"
	if !m.FirstKeystroke.IsZero() {
		first = millis(time.Duration(m.FirstKeystroke.UnixNano()))
	}
	return strings.Join([]string{
		identifier,
		env.UserAgent,
		env.Resolution(),
		env.Timezone,
		millis(m.TotalDuration),
		strconv.Itoa(m.SampleCount()),
		first,
	}, payloadSeparator)
}

// millis formats d in milliseconds with the shortest exact representation.
func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', -1, 64)
}

// Hash returns the lowercase hex fingerprint. It fails only when ctx is
// done before the digest is produced.
func (h *Hasher) Hash(ctx context.Context, identifier string, m keystroke.Metrics, env environment.Descriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d := h.newHash()
	d.Write([]byte(Payload(identifier, m, env)))
	sum := d.Sum(nil)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
