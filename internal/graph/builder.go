// Package graph validates and repairs structured recognition output into a
// well-formed concept graph.
package graph

import (
	"strings"

	"github.com/google/uuid"

	"github.com/conceptmap-ai/digitizer/internal/domain"
	"github.com/conceptmap-ai/digitizer/internal/observability"
)

// Builder turns structured recognition results into validated graphs.
type Builder struct {
	logger *observability.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(logger *observability.Logger) *Builder {
	return &Builder{logger: logger.WithComponent("graph")}
}

// Build validates and repairs a structured result. Concepts with missing or
// duplicate ids get synthetic ones, empty names and labels get defaults, and
// the structure hint is resolved so the root always references an existing
// concept. An input with no concepts cannot be structured and is rejected.
func (b *Builder) Build(res domain.StructuredResult) (domain.ConceptGraph, error) {
	if len(res.Concepts) == 0 {
		return domain.ConceptGraph{}, domain.GraphBuildError("no concepts to structure")
	}

	seen := make(map[string]bool, len(res.Concepts))
	concepts := make([]domain.Concept, 0, len(res.Concepts))
	repaired := 0
	for _, c := range res.Concepts {
		id := strings.TrimSpace(c.ID)
		if id == "" || seen[id] {
			id = syntheticID()
			repaired++
		}
		seen[id] = true

		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = domain.DefaultConceptName
			repaired++
		}

		concepts = append(concepts, domain.Concept{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(c.Description),
		})
	}

	relationships := make([]domain.Relationship, 0, len(res.Relationships))
	for _, r := range res.Relationships {
		label := strings.TrimSpace(r.Label)
		if label == "" {
			label = domain.DefaultRelationshipLabel
			repaired++
		}
		// Endpoints referencing unknown concepts are kept as-is: the
		// recognition service sometimes names concepts it never lists, and
		// downstream editors can resolve or drop them.
		relationships = append(relationships, domain.Relationship{
			Source: r.Source,
			Target: r.Target,
			Label:  label,
		})
	}

	structure := resolveStructure(res.Structure, concepts)

	if repaired > 0 {
		b.logger.Debug().Int("repairs", repaired).Int("concepts", len(concepts)).Msg("repaired recognition output")
	}

	return domain.ConceptGraph{
		Concepts:      concepts,
		Relationships: relationships,
		Structure:     structure,
	}, nil
}

// resolveStructure produces a structure hint whose root is guaranteed to be
// an existing concept id. A provided root that resolves is kept; anything
// else falls back to the first concept.
func resolveStructure(hint *domain.StructureHint, concepts []domain.Concept) domain.StructureHint {
	out := domain.StructureHint{
		Type: domain.DefaultStructureType,
		Root: concepts[0].ID,
	}
	if hint == nil {
		return out
	}
	if t := strings.TrimSpace(hint.Type); t != "" {
		out.Type = t
	}
	if root := strings.TrimSpace(hint.Root); root != "" {
		for _, c := range concepts {
			if c.ID == root {
				out.Root = root
				break
			}
		}
	}
	return out
}

// syntheticID generates a compact concept id unlikely to collide with
// service-assigned ones.
func syntheticID() string {
	id := uuid.NewString()
	return "c" + strings.ReplaceAll(id, "-", "")[:12]
}
