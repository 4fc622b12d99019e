package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/pkg/models"
)

// GraphService keeps the interaction graph in Neo4j and answers neighbor
// queries over it. Nodes are Users and Resources, edges carry interaction
// strength.
type GraphService struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewGraphService(driver neo4j.DriverWithContext, logger *logrus.Logger) *GraphService {
	return &GraphService{driver: driver, logger: logger}
}

// RecordInteraction mirrors one interaction into the graph. Failures are
// logged and never propagate to the write path.
func (s *GraphService) RecordInteraction(ctx context.Context, interaction *models.UserInteraction) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	cypher := `
		MERGE (u:User {id: $user_id})
		MERGE (r:Resource {id: $resource_id})
		MERGE (u)-[i:INTERACTED]->(r)
		SET i.strength = CASE WHEN i.strength IS NULL OR i.strength < $strength
			THEN $strength ELSE i.strength END,
		    i.type = $type,
		    i.updated_at = datetime()`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{
			"user_id":     interaction.UserID.String(),
			"resource_id": interaction.ResourceID.String(),
			"strength":    interaction.Strength,
			"type":        interaction.Type,
		})
		if err != nil {
			return nil, err
		}
		_, err = result.Consume(ctx)
		return nil, err
	})
	if err != nil {
		s.logger.WithError(err).WithField("user_id", interaction.UserID).
			Warn("Failed to mirror interaction into graph")
	}
}

// NeighborResources walks from the user's strongest interactions out to
// resources reached within the hop limit, excluding anything the user
// already touched. Scores decay with path length and accumulate edge
// strength along the way.
func (s *GraphService) NeighborResources(ctx context.Context, userID uuid.UUID, hops, seedLimit, limit int) ([]ScoredResource, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	cypher := fmt.Sprintf(`
		MATCH (u:User {id: $user_id})-[i:INTERACTED]->(seed:Resource)
		WITH u, seed, i.strength AS seed_strength
		ORDER BY seed_strength DESC
		LIMIT $seed_limit
		MATCH path = (seed)<-[:INTERACTED]-(:User)-[:INTERACTED*0..%d]->(candidate:Resource)
		WHERE candidate <> seed AND NOT (u)-[:INTERACTED]->(candidate)
		WITH candidate,
		     SUM(seed_strength / (1.0 + length(path))) AS score
		RETURN candidate.id AS resource_id, score
		ORDER BY score DESC, resource_id ASC
		LIMIT $limit`, maxInt(hops-1, 0))

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{
			"user_id":    userID.String(),
			"seed_limit": seedLimit,
			"limit":      limit,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query graph neighbors: %w", err)
	}

	var hits []ScoredResource
	var maxScore float64
	for _, record := range records.([]*neo4j.Record) {
		rawID, _ := record.Get("resource_id")
		rawScore, _ := record.Get("score")

		idStr, ok := rawID.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			s.logger.WithField("resource_id", idStr).Warn("Skipping non-uuid graph node")
			continue
		}

		score, _ := rawScore.(float64)
		if score > maxScore {
			maxScore = score
		}
		hits = append(hits, ScoredResource{ResourceID: id, Score: score})
	}

	// Normalize path scores into [0,1] so they compose with the other
	// candidate sources.
	if maxScore > 0 {
		for i := range hits {
			hits[i].Score /= maxScore
		}
	}

	return hits, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
