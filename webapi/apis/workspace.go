package apis

import (
	"encoding/json"

	"github.com/shaharia-lab/cate/webapi"
)

// WorkspaceAPI manages the backend's workspaces.
type WorkspaceAPI struct {
	caller Caller
}

// NewWorkspaceAPI creates a WorkspaceAPI calling through caller.
func NewWorkspaceAPI(caller Caller) *WorkspaceAPI {
	return &WorkspaceAPI{caller: caller}
}

// NewWorkspace creates an unsaved workspace.
func (a *WorkspaceAPI) NewWorkspace() *webapi.Job {
	return a.caller.Call("new_workspace", []any{}, nil)
}

// OpenWorkspace opens the workspace stored at path.
func (a *WorkspaceAPI) OpenWorkspace(path string) *webapi.Job {
	return a.caller.Call("open_workspace", []any{path}, nil)
}

// SetWorkspaceResource runs opName with opArgs and stores its result as
// resource resName of the workspace in baseDir.
func (a *WorkspaceAPI) SetWorkspaceResource(baseDir, resName, opName string, opArgs map[string]any, onProgress webapi.ProgressHandler) *webapi.Job {
	if opArgs == nil {
		opArgs = map[string]any{}
	}
	return a.caller.Call("set_workspace_resource", []any{baseDir, resName, opName, opArgs}, onProgress)
}

// GetWorkspaceVariableStatistics computes statistics of varName. A nil index
// selects the whole variable.
func (a *WorkspaceAPI) GetWorkspaceVariableStatistics(baseDir, resName, varName string, index []int) *webapi.Job {
	var idx any
	if index != nil {
		idx = index
	}
	return a.caller.Call("get_workspace_variable_statistics", []any{baseDir, resName, varName, idx}, nil)
}

// DecodeWorkspace decodes a response carrying a Workspace.
func DecodeWorkspace(raw json.RawMessage) (Workspace, error) {
	return decode[Workspace]("workspace", raw)
}

// DecodeImageStatistics decodes the response of GetWorkspaceVariableStatistics.
func DecodeImageStatistics(raw json.RawMessage) (ImageStatistics, error) {
	return decode[ImageStatistics]("get_workspace_variable_statistics", raw)
}
