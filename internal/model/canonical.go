package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content hashing. Version suffix enables future
// algorithm migration without colliding with old hashes.
const (
	DomainAttrs   = "flotilla/attrs/v1"
	DomainTaskDef = "flotilla/taskdef/v1"
)

// MarshalCanonical produces canonical JSON for an attribute value,
// suitable for content hashing and deterministic diff output.
//
// Rules, following RFC 8785:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings NFC normalized
//  4. References serialize as their "${type.name.attr}" string form
//
// The value space is already sealed (no floats, no null), so unlike
// general-purpose canonical marshalers this cannot fail on well-formed
// model values.
func MarshalCanonical(v AttrValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCanonicalAttrs produces canonical JSON for a whole attribute
// mapping.
func MarshalCanonicalAttrs(a Attrs) ([]byte, error) {
	return MarshalCanonical(MapVal(a))
}

func writeCanonical(buf *bytes.Buffer, v AttrValue) error {
	switch val := v.(type) {
	case StringVal:
		return writeCanonicalString(buf, string(val))
	case IntVal:
		fmt.Fprintf(buf, "%d", int64(val))
		return nil
	case BoolVal:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case RefVal:
		return writeCanonicalString(buf, val.String())
	case ListVal:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case MapVal:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortUTF16(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case nil:
		return fmt.Errorf("null is forbidden in canonical attribute JSON")
	default:
		return fmt.Errorf("unsupported attribute type %T", v)
	}
}

// writeCanonicalString writes an NFC-normalized JSON string without HTML
// escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	// Encoder appends a newline; strip it.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// sortUTF16 sorts keys by UTF-16 code units per RFC 8785.
// This differs from byte order for strings containing supplementary-plane
// characters.
func sortUTF16(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		a := utf16.Encode([]rune(norm.NFC.String(keys[i])))
		b := utf16.Encode([]rune(norm.NFC.String(keys[j])))
		for x := 0; x < len(a) && x < len(b); x++ {
			if a[x] != b[x] {
				return a[x] < b[x]
			}
		}
		return len(a) < len(b)
	})
}

// HashAttrs computes the content hash of an attribute mapping.
// Equal mappings (after NFC normalization) always hash identically.
func HashAttrs(a Attrs) (string, error) {
	canonical, err := MarshalCanonicalAttrs(a)
	if err != nil {
		return "", fmt.Errorf("hash attrs: %w", err)
	}
	return hashWithDomain(DomainAttrs, canonical), nil
}

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data). The null separator prevents
// domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
