package gtm

import (
	"context"
	"log/slog"
	"net/http"
)

// The Tag Manager API is hierarchical and self-describing: every entity
// carries a "path" field naming its node in the resource tree, and paths
// returned by list operations are valid inputs to any deeper get/update/
// create call. The client stays a pass-through over that addressing scheme
// and never invents identifiers of its own. Paths are not validated locally;
// a malformed path surfaces as a normalized RequestError from the server.

// list fetches a collection at apiPath. The API wraps list results in an
// object keyed by the singular entity kind ({"tag": [...]}); a missing key
// means an empty collection. Server order is preserved and the result is
// never nil.
func (c *Client) list(ctx context.Context, op, apiPath, key string) ([]Entity, error) {
	c.logger.Info(op, slog.String("path", apiPath))

	body, err := c.do(ctx, op, http.MethodGet, apiPath, nil)
	if err != nil {
		return nil, err
	}

	raw, ok := body[key].([]any)
	if !ok {
		return []Entity{}, nil
	}

	items := make([]Entity, 0, len(raw))

	for _, v := range raw {
		if m, ok := v.(map[string]any); ok {
			items = append(items, Entity(m))
		}
	}

	c.logger.Debug(op+" complete",
		slog.String("path", apiPath),
		slog.Int("count", len(items)),
	)

	return items, nil
}

// ListAccounts returns all Tag Manager accounts visible to the session.
func (c *Client) ListAccounts(ctx context.Context) ([]Entity, error) {
	return c.list(ctx, "list accounts", "accounts", "account")
}

// ListContainers returns the containers under an account path.
func (c *Client) ListContainers(ctx context.Context, accountPath string) ([]Entity, error) {
	return c.list(ctx, "list containers", fmtPath(accountPath, "containers"), "container")
}

// ListWorkspaces returns the workspaces under a container path.
func (c *Client) ListWorkspaces(ctx context.Context, containerPath string) ([]Entity, error) {
	return c.list(ctx, "list workspaces", fmtPath(containerPath, "workspaces"), "workspace")
}

// ListTags returns the tags in a workspace.
func (c *Client) ListTags(ctx context.Context, workspacePath string) ([]Entity, error) {
	return c.list(ctx, "list tags", fmtPath(workspacePath, "tags"), "tag")
}

// ListTriggers returns the triggers in a workspace.
func (c *Client) ListTriggers(ctx context.Context, workspacePath string) ([]Entity, error) {
	return c.list(ctx, "list triggers", fmtPath(workspacePath, "triggers"), "trigger")
}

// ListVariables returns the variables in a workspace.
func (c *Client) ListVariables(ctx context.Context, workspacePath string) ([]Entity, error) {
	return c.list(ctx, "list variables", fmtPath(workspacePath, "variables"), "variable")
}

// GetContainer fetches one container by its path.
func (c *Client) GetContainer(ctx context.Context, containerPath string) (Entity, error) {
	return c.do(ctx, "get container", http.MethodGet, containerPath, nil)
}

// GetTag fetches one tag by its path.
func (c *Client) GetTag(ctx context.Context, tagPath string) (Entity, error) {
	return c.do(ctx, "get tag", http.MethodGet, tagPath, nil)
}

// GetVariable fetches one variable by its path.
func (c *Client) GetVariable(ctx context.Context, variablePath string) (Entity, error) {
	return c.do(ctx, "get variable", http.MethodGet, variablePath, nil)
}

// CreateTag creates a tag in a workspace. The payload carries no server
// identifier; the returned entity is the server's echo including the
// assigned id, path, and computed fields like fingerprint.
func (c *Client) CreateTag(ctx context.Context, workspacePath string, tag Entity) (Entity, error) {
	c.logger.Info("creating tag", slog.String("workspace", workspacePath))

	return c.do(ctx, "create tag", http.MethodPost, fmtPath(workspacePath, "tags"), tag)
}

// CreateTrigger creates a trigger in a workspace.
func (c *Client) CreateTrigger(ctx context.Context, workspacePath string, trigger Entity) (Entity, error) {
	c.logger.Info("creating trigger", slog.String("workspace", workspacePath))

	return c.do(ctx, "create trigger", http.MethodPost, fmtPath(workspacePath, "triggers"), trigger)
}

// CreateVariable creates a variable in a workspace.
func (c *Client) CreateVariable(ctx context.Context, workspacePath string, variable Entity) (Entity, error) {
	c.logger.Info("creating variable", slog.String("workspace", workspacePath))

	return c.do(ctx, "create variable", http.MethodPost, fmtPath(workspacePath, "variables"), variable)
}

// UpdateTag replaces a tag at its path with the given payload. No
// optimistic-concurrency check is done client-side; a stale fingerprint
// surfaces as a normalized conflict error from the server.
func (c *Client) UpdateTag(ctx context.Context, tagPath string, tag Entity) (Entity, error) {
	c.logger.Info("updating tag", slog.String("path", tagPath))

	return c.do(ctx, "update tag", http.MethodPut, tagPath, tag)
}

// UpdateVariable replaces a variable at its path with the given payload.
func (c *Client) UpdateVariable(ctx context.Context, variablePath string, variable Entity) (Entity, error) {
	c.logger.Info("updating variable", slog.String("path", variablePath))

	return c.do(ctx, "update variable", http.MethodPut, variablePath, variable)
}

// CreateVersion snapshots a workspace's current configuration into an
// immutable container version. The API wraps the result in a response
// object; the version entity (which carries its own path) is unwrapped for
// the caller, falling back to the raw response if the wrapper is absent.
func (c *Client) CreateVersion(ctx context.Context, workspacePath, name, notes string) (Entity, error) {
	c.logger.Info("creating version",
		slog.String("workspace", workspacePath),
		slog.String("name", name),
	)

	body := Entity{"name": name}
	if notes != "" {
		body["notes"] = notes
	}

	resp, err := c.do(ctx, "create version", http.MethodPost, workspacePath+":create_version", body)
	if err != nil {
		return nil, err
	}

	return unwrapVersion(resp), nil
}

// PublishVersion promotes a container version to live. One-way and
// non-idempotent from the caller's perspective; the server accepts a repeat
// publish of the already-live version with no additional effect.
func (c *Client) PublishVersion(ctx context.Context, versionPath string) (Entity, error) {
	c.logger.Info("publishing version", slog.String("path", versionPath))

	resp, err := c.do(ctx, "publish version", http.MethodPost, versionPath+":publish", nil)
	if err != nil {
		return nil, err
	}

	return unwrapVersion(resp), nil
}

// unwrapVersion extracts the containerVersion entity from a version
// operation response.
func unwrapVersion(resp Entity) Entity {
	if cv, ok := resp["containerVersion"].(map[string]any); ok {
		return Entity(cv)
	}

	return resp
}
