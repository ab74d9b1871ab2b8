package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/elattma/mimo-core-sub000/pkg/logger"
	"github.com/elattma/mimo-core-sub000/pkg/store"
)

// DeleteJobMsg asks for a connection's pages to be purged from both stores.
type DeleteJobMsg struct {
	Library    string `json:"library"`
	Connection string `json:"connection"`
}

// ProcessDeleteMessage removes every page of a connection from the graph,
// then drops the connection's vector rows by payload filter. The filter
// delete does not depend on the graph still knowing the ids, so a job
// redelivered after a vector failure reaches the dangling rows even though
// the graph side is already empty.
func ProcessDeleteMessage(
	ctx context.Context,
	graphStore store.GraphStore,
	vectorIndex store.VectorIndex,
	msg string,
) error {
	data := new(DeleteJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("unmarshaling delete job: %w", err)
	}
	if data.Library == "" || data.Connection == "" {
		return fmt.Errorf("delete job requires a library and a connection")
	}

	removed, err := graphStore.DeleteConnection(ctx, data.Library, data.Connection)
	if err != nil {
		return fmt.Errorf("deleting connection %s: %w", data.Connection, err)
	}
	if err := vectorIndex.DeleteByConnection(ctx, data.Library, data.Connection); err != nil {
		return fmt.Errorf("deleting vector rows of connection %s: %w", data.Connection, err)
	}

	logger.Info("[Queue] Delete job done",
		"library", data.Library,
		"connection", data.Connection,
		"removed", len(removed))
	return nil
}
