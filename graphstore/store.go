package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store wraps the Neo4j driver holding the participant graph
type Store struct {
	driver neo4j.DriverWithContext
}

// NewStore connects to Neo4j and verifies the connection
func NewStore(ctx context.Context, uri, user, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify neo4j connectivity: %w", err)
	}

	return &Store{driver: driver}, nil
}

// Close shuts down the underlying driver
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// run executes a single auto-commit query in its own session
func (s *Store) run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, neo4j.SessionWithContext, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		_ = session.Close(ctx)
		return nil, nil, err
	}
	return result, session, nil
}
