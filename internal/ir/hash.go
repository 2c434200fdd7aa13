package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the encoding to
// change without colliding with older fingerprints.
const (
	DomainPlan      = "prototype/plan/v1"
	DomainDirective = "prototype/directive/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the domain-separated hash of the canonical encoding of v.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// DirectiveObject renders d as a canonical object.
func DirectiveObject(d Directive) map[string]any {
	obj := map[string]any{
		"kind":  string(d.Kind()),
		"owner": d.OwnerName(),
	}
	switch v := d.(type) {
	case Chain:
		obj["targets"] = v.Targets
		obj["after"] = v.After
		obj["dynamic"] = v.Dynamic
	case Decision:
		obj["targets"] = v.Targets
		obj["negate"] = v.Negate
	case Fork:
		obj["targets"] = v.Targets
		obj["after"] = v.After
		obj["fail_fast"] = v.FailFast
		obj["pool"] = v.Pool
	case Async:
		obj["target"] = v.Target
		obj["after"] = v.After
		obj["pool"] = v.Pool
	case Catch:
		obj["handler"] = v.Handler
	}
	return obj
}

// DirectiveHash fingerprints a single directive.
func DirectiveHash(d Directive) (string, error) {
	return Fingerprint(DomainDirective, DirectiveObject(d))
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(domain string, v any) string {
	fp, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
