// Package fingerprint computes the deterministic digests used to key the
// template cache. Digests are persisted, so the canonical form must never change.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"alcyxob/fitgen/internal/domain"
)

func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Canonicalize marshals v with stable key ordering, no whitespace and every
// array sorted by the canonical encoding of its elements.
// Input may be raw JSON bytes or any json-marshalable value.
func Canonicalize(v any) ([]byte, error) {
	raw, ok := v.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(v)
		if err != nil {
			return nil, err
		}
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	sorted, err := sortTree(tree)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sorted)
}

func sortTree(node any) (any, error) {
	switch t := node.(type) {
	case map[string]any:
		for k, v := range t {
			s, err := sortTree(v)
			if err != nil {
				return nil, err
			}
			t[k] = s
		}
		return t, nil
	case []any:
		type keyed struct {
			key []byte
			val any
		}
		items := make([]keyed, len(t))
		for i, v := range t {
			s, err := sortTree(v)
			if err != nil {
				return nil, err
			}
			enc, err := json.Marshal(s)
			if err != nil {
				return nil, err
			}
			items[i] = keyed{key: enc, val: s}
		}
		sort.SliceStable(items, func(i, j int) bool {
			return bytes.Compare(items[i].key, items[j].key) < 0
		})
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = it.val
		}
		return out, nil
	default:
		return node, nil
	}
}

// canonicalInput fixes the key order of the input digest. Field order here is
// alphabetical and must stay that way.
type canonicalInput struct {
	DietType        string   `json:"dietType"`
	DurationWeeks   int      `json:"durationWeeks"`
	Equipment       []string `json:"equipment"`
	ExperienceLevel string   `json:"experienceLevel"`
	Goals           []string `json:"goals"`
}

// InputFingerprint hashes the normalized request facets that determine
// whether two requests would produce an equivalent program. Profile snapshots,
// constraints and session counts are deliberately outside the digest.
func InputFingerprint(req domain.GenerationRequest) string {
	c := canonicalInput{
		DietType:        normalize(req.DietType),
		DurationWeeks:   req.DurationWeeks,
		Equipment:       NormalizeList(req.Equipment),
		ExperienceLevel: normalize(req.ExperienceLevel),
		Goals:           NormalizeList(req.Goals),
	}
	// cannot fail: only strings and ints
	b, _ := json.Marshal(c)
	return HashBytes(b)
}

// ContentFingerprint hashes generated content so that byte-for-byte
// duplicate outputs collide regardless of list ordering.
func ContentFingerprint(content domain.ProgramContent) (string, error) {
	b, err := Canonicalize(content)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// NormalizeList lowercases, trims, drops empties, dedupes and sorts.
// It never returns nil so that empty lists encode as [].
func NormalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = normalize(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
