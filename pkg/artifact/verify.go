package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"m365prov/pkg/problems"
)

// Verifier checks a fetched body and returns the payload to parse.
type Verifier interface {
	Verify(ctx context.Context, path string, body []byte) ([]byte, error)
}

type VerifierFunc func(ctx context.Context, path string, body []byte) ([]byte, error)

func (f VerifierFunc) Verify(ctx context.Context, path string, body []byte) ([]byte, error) {
	return f(ctx, path, body)
}

// NoVerify accepts every body as is.
var NoVerify Verifier = VerifierFunc(func(_ context.Context, _ string, body []byte) ([]byte, error) {
	return body, nil
})

// NewVerifier builds the verifier for a mode: off, sha256 or jws.
func NewVerifier(mode string, src Source, jwksPath string) (Verifier, error) {
	switch strings.ToLower(mode) {
	case "", "off", "none":
		return NoVerify, nil
	case "sha256":
		return &ChecksumVerifier{src: src}, nil
	case "jws":
		if jwksPath == "" {
			return nil, problems.Newf(problems.KindConfig, "jws verification", "no trusted JWK set configured")
		}
		set, err := jwk.ReadFile(jwksPath)
		if err != nil {
			return nil, problems.New(problems.KindConfig, "jws verification", fmt.Errorf("read %s: %w", jwksPath, err))
		}
		return NewSignatureVerifier(set), nil
	default:
		return nil, problems.Newf(problems.KindConfig, "unknown verify mode", "%q", mode)
	}
}

// ChecksumVerifier compares the body against the hex digest published next
// to it at {path}.sha256 (sha256sum output format is accepted).
type ChecksumVerifier struct {
	src Source
}

func NewChecksumVerifier(src Source) *ChecksumVerifier { return &ChecksumVerifier{src: src} }

func (v *ChecksumVerifier) Verify(ctx context.Context, path string, body []byte) ([]byte, error) {
	sidecar, err := v.src.Fetch(ctx, path+".sha256")
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(sidecar))
	if len(fields) == 0 {
		return nil, problems.Fetch(path, errors.New("empty checksum"))
	}
	sum := sha256.Sum256(body)
	if !strings.EqualFold(fields[0], hex.EncodeToString(sum[:])) {
		return nil, problems.Fetch(path, errors.New("checksum mismatch"))
	}
	return body, nil
}

// SignatureVerifier expects the artifact as a compact JWS signed by a key of
// the trusted set; the payload is the YAML document.
type SignatureVerifier struct {
	set jwk.Set
}

func NewSignatureVerifier(set jwk.Set) *SignatureVerifier { return &SignatureVerifier{set: set} }

func (v *SignatureVerifier) Verify(_ context.Context, path string, body []byte) ([]byte, error) {
	payload, err := jws.Verify([]byte(strings.TrimSpace(string(body))),
		jws.WithKeySet(v.set, jws.WithRequireKid(false), jws.WithInferAlgorithmFromKey(true)))
	if err != nil {
		return nil, problems.Fetch(path, fmt.Errorf("signature: %w", err))
	}
	return payload, nil
}
