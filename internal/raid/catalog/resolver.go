package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// Name kinds accepted by the Resolver.
const (
	KindExplosive = "explosive"
	KindStructure = "structure"
)

// Match sources reported in a raid.Resolution.
const (
	MatchExact  = "exact"
	MatchCase   = "case"
	MatchPrefix = "prefix"
	MatchFuzzy  = "fuzzy"
	MatchNone   = "none"
)

// Resolver turns free-text names typed by a user into canonical catalog ids.
// Matching tries exact, then case and whitespace insensitive, then a unique
// prefix, then a bounded edit distance.
type Resolver struct {
	catalog        *Catalog
	maxSuggestions int
	cache          *lru.Cache[string, raid.Resolution]
}

// NewResolver creates a Resolver over c. A cacheSize of 0 disables caching.
func NewResolver(c *Catalog, cacheSize, maxSuggestions int) (*Resolver, error) {
	if maxSuggestions <= 0 {
		maxSuggestions = 3
	}
	r := &Resolver{catalog: c, maxSuggestions: maxSuggestions}
	if cacheSize > 0 {
		cache, err := lru.New[string, raid.Resolution](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating resolver cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Resolve resolves name against the ids of the given kind.
func (r *Resolver) Resolve(kind, name string) (raid.Resolution, error) {
	var ids []string
	switch kind {
	case KindExplosive:
		ids = r.catalog.explosiveIDs
	case KindStructure:
		ids = r.catalog.structureIDs
	default:
		return raid.Resolution{}, fmt.Errorf("unknown name kind %q", kind)
	}

	key := kind + "\x00" + name
	if r.cache != nil {
		if res, ok := r.cache.Get(key); ok {
			return res, nil
		}
	}

	res := r.resolve(ids, name)
	if r.cache != nil {
		r.cache.Add(key, res)
	}
	return res, nil
}

// Explosive resolves name to an explosive id or returns an UnknownExplosive error.
func (r *Resolver) Explosive(name string) (string, error) {
	res, err := r.Resolve(KindExplosive, name)
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", &raid.InputError{Kind: raid.ErrUnknownExplosive, ID: name, Value: suggestionValue(res)}
	}
	return res.ID, nil
}

// Structure resolves name to a structure id or returns an UnknownStructure error.
func (r *Resolver) Structure(name string) (string, error) {
	res, err := r.Resolve(KindStructure, name)
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", &raid.InputError{Kind: raid.ErrUnknownStructure, ID: name, Value: suggestionValue(res)}
	}
	return res.ID, nil
}

func suggestionValue(res raid.Resolution) any {
	if len(res.Suggestions) == 0 {
		return nil
	}
	return "did you mean " + strings.Join(res.Suggestions, ", ") + "?"
}

type candidate struct {
	id   string
	dist int
}

func (r *Resolver) resolve(ids []string, name string) raid.Resolution {
	res := raid.Resolution{Input: name, Match: MatchNone}

	for _, id := range ids {
		if id == name {
			res.ID, res.Match = id, MatchExact
			return res
		}
	}

	in := Normalize(name)
	if in == "" {
		return res
	}
	for _, id := range ids {
		if Normalize(id) == in {
			res.ID, res.Match = id, MatchCase
			return res
		}
	}

	var prefixed []string
	for _, id := range ids {
		if len(in) >= 2 && strings.HasPrefix(Normalize(id), in) {
			prefixed = append(prefixed, id)
		}
	}
	if len(prefixed) == 1 {
		res.ID, res.Match = prefixed[0], MatchPrefix
		return res
	}

	var cands []candidate
	if len(in) >= 3 {
		for _, id := range ids {
			norm := Normalize(id)
			dist := levenshtein.ComputeDistance(in, norm)
			if dist > levenshteinLimit(len(norm)) {
				continue
			}
			cands = append(cands, candidate{id: id, dist: dist})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist == cands[j].dist {
			return cands[i].id < cands[j].id
		}
		return cands[i].dist < cands[j].dist
	})

	if len(cands) == 1 || (len(cands) > 1 && cands[0].dist < cands[1].dist) {
		res.ID, res.Match = cands[0].id, MatchFuzzy
		return res
	}

	seen := make(map[string]bool)
	for _, id := range prefixed {
		if len(res.Suggestions) >= r.maxSuggestions {
			break
		}
		seen[id] = true
		res.Suggestions = append(res.Suggestions, id)
	}
	for _, c := range cands {
		if len(res.Suggestions) >= r.maxSuggestions {
			break
		}
		if seen[c.id] {
			continue
		}
		seen[c.id] = true
		res.Suggestions = append(res.Suggestions, c.id)
	}
	return res
}

// Normalize lowercases s and collapses runs of whitespace, underscores and dashes.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func levenshteinLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}
