package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/riverwalk/internal/models"
)

// resolveID expands a unique id prefix to the full id of a stored record.
// Exact ids and prefixes matching nothing are passed through so the facade
// can look them up on the server.
func resolveID(a *app, kind models.Kind, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%s id is required", kind)
	}
	recs, err := a.store.GetAll(kind)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range recs {
		id := r.Ident()
		if id.ID == ref || id.LocalID == ref {
			return ref, nil
		}
		if strings.HasPrefix(id.ID, ref) || strings.HasPrefix(id.LocalID, ref) {
			matches = append(matches, id.ID)
		}
	}
	switch len(matches) {
	case 0:
		return ref, nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id %q is ambiguous: matches %d %s", ref, len(matches), kind)
	}
}

// parseFloats parses a comma-separated list such as "0.1, 0.35,0.2".
func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseSediment parses "size:roundness" pairs, e.g. "42:3,17.5:5".
func parseSediment(s string) ([]models.SedimentSample, error) {
	var out []models.SedimentSample
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sizeStr, roundStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid sediment sample %q: want size:roundness", part)
		}
		size, err := strconv.ParseFloat(strings.TrimSpace(sizeStr), 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid sediment size %q", sizeStr)
		}
		round, err := strconv.Atoi(strings.TrimSpace(roundStr))
		if err != nil || round < 1 || round > 6 {
			return nil, fmt.Errorf("invalid roundness %q: want 1-6", roundStr)
		}
		out = append(out, models.SedimentSample{Size: size, Roundness: round})
	}
	return out, nil
}
