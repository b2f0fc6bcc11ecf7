package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardjlyon/ayda/pkg/anythingllm"
)

// ErrWorkspaceExists is returned when an import targets an existing
// workspace without replacing it.
var ErrWorkspaceExists = errors.New("workspace already exists")

// Workspaces lists the AnythingLLM workspaces.
func (a *App) Workspaces(ctx context.Context) ([]anythingllm.Workspace, error) {
	return a.llm.Workspaces(ctx)
}

// CreateWorkspace creates a workspace called name.
func (a *App) CreateWorkspace(ctx context.Context, name string) (anythingllm.Workspace, error) {
	return a.llm.CreateWorkspace(ctx, name)
}

// DeleteWorkspace deletes the workspace called name together with its
// documents.
func (a *App) DeleteWorkspace(ctx context.Context, name string) error {
	ws, err := a.llm.WorkspaceByName(ctx, name)
	if err != nil {
		return err
	}
	if err := a.llm.DeleteWorkspace(ctx, ws.Slug); err != nil {
		return err
	}
	a.logger.Info().Str("workspace", ws.Slug).Msg("Deleted workspace")
	return nil
}

// DeleteAllWorkspaces deletes every workspace and returns their slugs.
func (a *App) DeleteAllWorkspaces(ctx context.Context) ([]string, error) {
	deleted, err := a.llm.DeleteAllWorkspaces(ctx)
	a.logger.Info().Strs("workspaces", deleted).Msg("Deleted workspaces")
	return deleted, err
}

// Documents lists the documents in the AnythingLLM document store.
func (a *App) Documents(ctx context.Context) ([]anythingllm.Document, error) {
	return a.llm.Documents(ctx)
}

// Chat sends message to the workspace called name.
func (a *App) Chat(ctx context.Context, name, message string, mode anythingllm.ChatMode) (anythingllm.ChatResponse, error) {
	ws, err := a.llm.WorkspaceByName(ctx, name)
	if err != nil {
		return anythingllm.ChatResponse{}, err
	}
	return a.llm.Chat(ctx, ws.Slug, message, mode)
}

// prepareWorkspace returns a fresh workspace called name. An existing one
// is an error unless replace is set, in which case it is deleted first.
func (a *App) prepareWorkspace(ctx context.Context, name string, replace bool) (anythingllm.Workspace, error) {
	existing, err := a.llm.WorkspaceByName(ctx, name)
	switch {
	case err == nil:
		if !replace {
			return anythingllm.Workspace{}, fmt.Errorf("%w: %q (use --replace to rebuild it)", ErrWorkspaceExists, name)
		}
		if err := a.llm.DeleteWorkspace(ctx, existing.Slug); err != nil {
			return anythingllm.Workspace{}, fmt.Errorf("replace workspace %q: %w", name, err)
		}
		a.logger.Info().Str("workspace", existing.Slug).Msg("Deleted existing workspace")
	case errors.Is(err, anythingllm.ErrWorkspaceNotFound):
	default:
		return anythingllm.Workspace{}, err
	}

	ws, err := a.llm.CreateWorkspace(ctx, name)
	if err != nil {
		return anythingllm.Workspace{}, err
	}
	a.logger.Info().Str("workspace", ws.Slug).Str("name", name).Msg("Created workspace")
	return ws, nil
}
