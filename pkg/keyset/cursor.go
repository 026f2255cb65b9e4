package keyset

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Cursor is the decoded form of an opaque pagination cursor: the sorted
// key values of the last row on a page, a structural signature of the
// keys that produced it (so a cursor minted against one ORDER BY can
// never silently be replayed against another), and a fingerprint tying
// it to the query/backend-set shape it was minted for.
type Cursor struct {
	Values      []any    `json:"v"`
	KeySig      []string `json:"k"`
	Fingerprint string   `json:"f"`
	Sig         string   `json:"s,omitempty"`
}

// payload is the exact wire shape serialized before base64url encoding.
// Field order matters for byte-identical encoding across runs, so it is
// built through json.Marshal on a struct with fixed field order rather
// than a map.
type payload struct {
	V []any    `json:"v"`
	K []string `json:"k"`
	F string   `json:"f"`
}

// EncodeCursor serializes values (the last row's ORDER BY key values, in
// ORDER BY order), a structural signature of the keys, and a fingerprint
// (typically a hash of the query shape + backend-set identity) into an
// opaque base64url token. When secret is non-empty, an HMAC-SHA256 tag
// over the encoded payload is appended so tampering is detectable on
// decode.
func EncodeCursor(values []any, keySig []string, fingerprint string, secret []byte) (string, error) {
	p := payload{V: values, K: keySig, F: fingerprint}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("keyset: failed to marshal cursor payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	if len(secret) == 0 {
		return encoded, nil
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return encoded + "." + sig, nil
}

// DecodeCursor reverses EncodeCursor, verifying the HMAC tag (constant
// time) when secret is non-empty, and rejecting any cursor whose
// fingerprint or key signature does not match the expected values for
// the query being paginated.
func DecodeCursor(token string, expectedKeySig []string, expectedFingerprint string, secret []byte) (*Cursor, error) {
	encoded := token
	if len(secret) > 0 {
		idx := lastDot(token)
		if idx < 0 {
			return nil, errors.New("keyset: cursor is missing its signature")
		}
		encoded, sig := token[:idx], token[idx+1:]
		mac := hmac.New(sha256.New, secret)
		mac.Write([]byte(encoded))
		want, err := base64.RawURLEncoding.DecodeString(sig)
		if err != nil {
			return nil, errors.New("keyset: cursor signature is not valid base64")
		}
		if subtle.ConstantTimeCompare(mac.Sum(nil), want) != 1 {
			return nil, errors.New("keyset: cursor signature does not match")
		}
		token = encoded
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("keyset: cursor is not valid base64: %w", err)
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("keyset: cursor payload is malformed: %w", err)
	}

	if p.F != expectedFingerprint {
		return nil, errors.New("keyset: cursor fingerprint does not match the current query")
	}
	if !sameKeySig(p.K, expectedKeySig) {
		return nil, errors.New("keyset: cursor key structure does not match the current ORDER BY")
	}

	return &Cursor{Values: p.V, KeySig: p.K, Fingerprint: p.F}, nil
}

func sameKeySig(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// KeySignature renders a structural signature for a set of order keys,
// suitable for embedding in a cursor and for comparison on decode. Two
// ORDER BY clauses produce the same signature iff they agree on
// expression text, direction, and null ordering for every key.
func KeySignature(keys []OrderKey) []string {
	sig := make([]string, len(keys))
	for i, k := range keys {
		dir := "asc"
		if k.Descending {
			dir = "desc"
		}
		nulls := "nulls_last"
		if k.NullsFirst {
			nulls = "nulls_first"
		}
		sig[i] = k.Expr + "|" + dir + "|" + nulls
	}
	return sig
}
